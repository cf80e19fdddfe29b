// Package translation implements text translation clients for a fixed
// language pair: a plain HTTP JSON engine for self-hosted translators and a
// chat-completion engine backed by the OpenAI API.
package translation
