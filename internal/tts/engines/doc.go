// Package engines contains the speech generation backends. GeminiEngine
// implements ttypes.SpeechGenerator on the Gemini generateContent endpoint
// with retry, backoff and request pacing.
package engines
