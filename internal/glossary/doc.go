// Package glossary applies deterministic post-translation text rewrites:
// regex-based gaming terminology substitutions and Cyrillic-to-Latin
// transliteration for overlay display.
package glossary
