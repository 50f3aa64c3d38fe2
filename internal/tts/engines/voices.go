package engines

import (
	"fmt"

	"github.com/dastaan/dastaan/internal/ttypes"
)

// DefaultProviderVoice is used for voice ids missing from the table.
const DefaultProviderVoice = "Zephyr"

// providerVoices maps voice ids to Gemini prebuilt voice names.
var providerVoices = map[ttypes.Voice]string{
	ttypes.VoiceKore:   "Kore",
	ttypes.VoicePuck:   "Puck",
	ttypes.VoiceCharon: "Charon",
	ttypes.VoiceFenrir: "Fenrir",
	ttypes.VoiceZephyr: "Zephyr",
}

// toneStyles maps tones to the narrator description placed in the prompt.
var toneStyles = map[ttypes.Tone]string{
	ttypes.ToneBedtime:    "gentle, slow bedtime story",
	ttypes.ToneDramatic:   "dramatic, expressive and cinematic",
	ttypes.ToneCalm:       "calm and steady audiobook",
	ttypes.ToneReflective: "reflective and philosophical",
}

// VoiceDescriptions are shown by the voices command.
var VoiceDescriptions = map[ttypes.Voice]string{
	ttypes.VoiceKore:   "firm, clear female voice",
	ttypes.VoicePuck:   "upbeat male voice",
	ttypes.VoiceCharon: "deep, informative male voice",
	ttypes.VoiceFenrir: "excitable, energetic male voice",
	ttypes.VoiceZephyr: "bright, warm female voice",
}

// ProviderVoice returns the Gemini voice for v, falling back to
// DefaultProviderVoice for unknown ids.
func ProviderVoice(v ttypes.Voice) string {
	if name, ok := providerVoices[v]; ok {
		return name
	}
	return DefaultProviderVoice
}

// ToneStyle returns the style instruction for t. Unknown tones use the calm style.
func ToneStyle(t ttypes.Tone) string {
	if style, ok := toneStyles[t]; ok {
		return style
	}
	return toneStyles[ttypes.ToneCalm]
}

// BuildPrompt wraps chunk text with the narration instruction for tone.
func BuildPrompt(text string, tone ttypes.Tone) string {
	return fmt.Sprintf("Speak the following Urdu text clearly as a %s narrator. Output only the audio: %s", ToneStyle(tone), text)
}
