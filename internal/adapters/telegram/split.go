package telegram

import "strings"

// MessageLimit ограничивает длину сообщения Bot API в символах.
const MessageLimit = 4096

// SplitMessage режет текст на части не длиннее MessageLimit.
func SplitMessage(text string) []string {
	return SplitMessageN(text, MessageLimit)
}

// SplitMessageN режет текст на части не длиннее limit символов.
// Сначала ищет перевод строки, затем пробел, иначе режет по limit.
func SplitMessageN(text string, limit int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if limit <= 0 || len(runes) <= limit {
		return []string{string(runes)}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendChunk(parts, runes)
			break
		}
		cut := lastIndex(runes[:limit+1], '\n')
		if cut <= 0 {
			cut = lastIndex(runes[:limit+1], ' ')
		}
		if cut <= 0 {
			cut = limit
		}
		parts = appendChunk(parts, runes[:cut])
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n "))
	}
	return parts
}

func appendChunk(parts []string, chunk []rune) []string {
	if s := strings.Trim(string(chunk), "\n "); s != "" {
		parts = append(parts, s)
	}
	return parts
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
