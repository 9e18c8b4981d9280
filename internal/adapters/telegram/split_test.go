package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessagePrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := SplitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := len([]rune(part)); n > MessageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, n)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatal("первая часть должна содержать только блок a")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatal("вторая часть должна содержать блоки b и c")
	}
}

func TestSplitMessageFallsBackToSpaces(t *testing.T) {
	parts := SplitMessageN("один два три четыре", 9)
	want := []string{"один два", "три", "четыре"}
	if len(parts) != len(want) {
		t.Fatalf("ожидали %v, получили %v", want, parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, parts)
		}
	}
}

func TestSplitMessageHardCut(t *testing.T) {
	parts := SplitMessageN(strings.Repeat("я", 25), 10)
	if len(parts) != 3 || len([]rune(parts[2])) != 5 {
		t.Fatalf("неожиданное разбиение: %v", parts)
	}
}

func TestSplitMessageShortAndEmpty(t *testing.T) {
	if parts := SplitMessage("hello world"); len(parts) != 1 || parts[0] != "hello world" {
		t.Fatalf("короткий текст не должен делиться: %v", parts)
	}
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("пустой текст должен давать 0 частей, получили %d", len(parts))
	}
}
