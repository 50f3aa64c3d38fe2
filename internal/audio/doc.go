// Package audio decodes generated speech, wraps it into WAV or MP3 containers,
// and plays it through the oto/v3 output with optional background music.
package audio
