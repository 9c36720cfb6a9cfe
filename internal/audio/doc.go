// Package audio segments a raw PCM stream into utterances and encodes them
// for speech-to-text submission.
package audio
