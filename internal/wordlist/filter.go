package wordlist

import "unicode"

// FilterFunc returns true when a word should be kept.
type FilterFunc func(string) bool

// Filter narrows a word list to the words a drill can use.
type Filter struct {
	// Keys limits words to these characters, compared case-insensitively.
	// Empty allows any key.
	Keys string
	// MaxLen drops words longer than this many runes. Zero disables it.
	MaxLen int
}

// Func returns f as a FilterFunc, or nil when f keeps every word.
func (f Filter) Func() FilterFunc {
	if f.Keys == "" && f.MaxLen <= 0 {
		return nil
	}
	allowed := keySet(f.Keys)
	return func(word string) bool {
		n := 0
		for _, r := range word {
			n++
			if allowed != nil && !allowed[unicode.ToLower(r)] {
				return false
			}
		}
		return f.MaxLen <= 0 || n <= f.MaxLen
	}
}

func keySet(keys string) map[rune]bool {
	if keys == "" {
		return nil
	}
	set := make(map[rune]bool, len(keys))
	for _, r := range keys {
		set[unicode.ToLower(r)] = true
	}
	return set
}

// lowerASCII keeps the plain lowercase words the embedded list is made of.
func lowerASCII(word string) bool {
	if word == "" {
		return false
	}
	for i := 0; i < len(word); i++ {
		if word[i] < 'a' || word[i] > 'z' {
			return false
		}
	}
	return true
}

// both keeps words accepted by a and b; nil accepts everything.
func both(a, b FilterFunc) FilterFunc {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(word string) bool { return a(word) && b(word) }
}
