package gateway

import (
	"fmt"
	"strings"
)

// helpText lists the slash commands, returned by /help.
const helpText = "Available commands: " +
	"/model <name>, /agent <name>, /voice <name>, /tts {kokoro|openai}, " +
	"/stt {parakeet|cloud}, /clear, /help"

// executeCommand runs one slash command against the session configuration and
// returns the result object for the command_result reply. Successful commands
// answer {message}, failures {error}; the connection never closes over a bad
// command.
func (c *Conn) executeCommand(name string, args []string) any {
	switch strings.TrimPrefix(name, "/") {
	case "model":
		if len(args) == 0 || args[0] == "" {
			return errResult("usage: /model <name>")
		}
		c.mu.Lock()
		c.sess.model = args[0]
		c.mu.Unlock()
		return okResult("model set to " + args[0])

	case "agent":
		if len(args) == 0 || args[0] == "" {
			return errResult("usage: /agent <name>")
		}
		p, ok := c.personas.Get(args[0])
		if !ok {
			return errResult(fmt.Sprintf("unknown agent %q; available: %s",
				args[0], strings.Join(c.personaIDs(), ", ")))
		}
		c.mu.Lock()
		c.applyPersonaLocked(p)
		c.mu.Unlock()
		return okResult("agent set to " + p.Name)

	case "voice":
		if len(args) == 0 || args[0] == "" {
			return errResult("usage: /voice <name>")
		}
		c.mu.Lock()
		c.sess.voice = args[0]
		c.mu.Unlock()
		return okResult("voice set to " + args[0])

	case "tts":
		if len(args) == 0 || (args[0] != "kokoro" && args[0] != "openai") {
			return errResult("usage: /tts {kokoro|openai}")
		}
		if err := c.cfg.TTS.SetPreferred(args[0]); err != nil {
			return errResult("tts provider unavailable: " + args[0])
		}
		c.mu.Lock()
		c.sess.ttsProvider = args[0]
		c.mu.Unlock()
		return okResult("tts provider set to " + args[0])

	case "stt":
		if len(args) == 0 || (args[0] != "parakeet" && args[0] != "cloud") {
			return errResult("usage: /stt {parakeet|cloud}")
		}
		c.mu.Lock()
		c.sess.sttProvider = args[0]
		c.mu.Unlock()
		return okResult("stt provider set to " + args[0])

	case "clear":
		key := c.currentSessionKey()
		c.history.Clear(key)
		return okResult("history cleared for session " + key)

	case "help":
		return okResult(helpText)

	default:
		return errResult(fmt.Sprintf(
			"Unknown command: /%s. Type /help for available commands.",
			strings.TrimPrefix(name, "/")))
	}
}

// personaIDs returns the configured persona ids for error messages.
func (c *Conn) personaIDs() []string {
	personas := c.personas.List()
	ids := make([]string, 0, len(personas))
	for _, p := range personas {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		ids = append(ids, c.personas.Default().ID)
	}
	return ids
}

func okResult(message string) map[string]string {
	return map[string]string{"message": message}
}

func errResult(message string) map[string]string {
	return map[string]string{"error": message}
}
