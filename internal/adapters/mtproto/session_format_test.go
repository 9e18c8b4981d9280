package mtproto

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func testAuthKeyHex() string {
	return strings.Repeat("ab", 256)
}

func TestNormalizeSessionTelethonRows(t *testing.T) {
	raw := `[{"dc_id":2,"server_address":"149.154.167.51","port":443,"auth_key":"` + testAuthKeyHex() + `"}]`
	out, format, err := NormalizeSession([]byte(raw))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if format != FormatTelethonRows {
		t.Fatalf("ожидали %s, получили %s", FormatTelethonRows, format)
	}
	var decoded struct {
		Version int
		Data    struct {
			DC      int
			Addr    string
			AuthKey []byte
		}
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("результат не JSON: %v", err)
	}
	if decoded.Version != 1 || decoded.Data.DC != 2 || decoded.Data.Addr != "149.154.167.51:443" {
		t.Fatalf("неожиданная сессия: %+v", decoded)
	}
	if len(decoded.Data.AuthKey) != 256 {
		t.Fatalf("ожидали ключ 256 байт, получили %d", len(decoded.Data.AuthKey))
	}

	again, format, err := NormalizeSession(out)
	if err != nil || format != FormatGotd {
		t.Fatalf("gotd JSON должен распознаваться как есть: %s %v", format, err)
	}
	if string(again) != string(out) {
		t.Fatal("gotd JSON не должен меняться")
	}
}

func TestNormalizeSessionRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":     "   ",
		"short key": `[{"dc_id":2,"server_address":"1.1.1.1","port":443,"auth_key":"abcd"}]`,
		"garbage":   "definitely not a session",
		"no params": `{"phone":"+100"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := NormalizeSession([]byte(raw)); err == nil {
				t.Fatal("ожидали ошибку")
			}
		})
	}
	if _, _, err := NormalizeSession([]byte("garbage")); !errors.Is(err, ErrUnsupportedSessionFormat) {
		t.Fatalf("ожидали ErrUnsupportedSessionFormat, получили %v", err)
	}
}
