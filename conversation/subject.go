package conversation

import "strings"

var replyPrefixes = []string{"re:", "fw:", "fwd:", "aw:", "sv:"}

// NormalizeSubject strips any run of reply and forward prefixes, folds case
// and collapses whitespace. An empty result means the subject cannot be used
// for matching.
func NormalizeSubject(subject string) string {
	value := strings.ToLower(strings.Join(strings.Fields(subject), " "))
	for {
		stripped := false
		for _, prefix := range replyPrefixes {
			if strings.HasPrefix(value, prefix) {
				value = strings.TrimSpace(value[len(prefix):])
				stripped = true
			}
		}
		if !stripped {
			return value
		}
	}
}

// DisplaySubject strips reply prefixes but keeps the original casing.
func DisplaySubject(subject string) string {
	value := strings.Join(strings.Fields(subject), " ")
	for {
		lower := strings.ToLower(value)
		stripped := false
		for _, prefix := range replyPrefixes {
			if strings.HasPrefix(lower, prefix) {
				value = strings.TrimSpace(value[len(prefix):])
				stripped = true
				break
			}
		}
		if !stripped {
			return value
		}
	}
}
