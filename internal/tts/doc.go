// Package tts turns long Urdu text into one narration: it splits the text
// into request sized chunks, generates speech for each in order, merges the
// audio, hands it to playback, and exports it as WAV or MP3.
package tts
