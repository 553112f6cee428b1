package bot

import "strings"

// imagePrefix triggers the image-generation handler. The check is
// case-insensitive on a left-trimmed copy; the forwarded prompt keeps the
// user's original casing with only the prefix consumed.
const imagePrefix = "image "

// Intent is the handler chosen for an inbound message.
type Intent int

const (
	// IntentChat forwards the full original message to the completion API.
	IntentChat Intent = iota
	// IntentImage sends the stripped prompt to the image API.
	IntentImage
	// IntentImageMissingPrompt is the "image" prefix with nothing after it:
	// reply with the fixed prompt-request message, no API call.
	IntentImageMissingPrompt
)

// Classify decides which handler processes the message body. For IntentImage
// the returned string is the trimmed prompt; otherwise it is empty and the
// caller forwards the original body.
func Classify(body string) (Intent, string) {
	// Trim only the left side here: a full trim would eat the trailing space
	// that distinguishes "image " (empty prompt) from plain "image" (chat).
	rest := strings.TrimLeft(body, " \t\r\n")
	if !strings.HasPrefix(strings.ToLower(rest), imagePrefix) {
		return IntentChat, ""
	}
	prompt := strings.TrimSpace(rest[len(imagePrefix):])
	if prompt == "" {
		return IntentImageMissingPrompt, ""
	}
	return IntentImage, prompt
}
