package mtproto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
)

// SessionFormat обозначает формат, в котором пришла сессия при импорте.
type SessionFormat string

const (
	FormatGotd            SessionFormat = "gotd"
	FormatTelethonString  SessionFormat = "telethon_string"
	FormatTelethonRows    SessionFormat = "telethon_rows"
	FormatTelethonAccount SessionFormat = "telethon_account"
)

// ErrUnsupportedSessionFormat возвращается, если формат сессии не распознан.
var ErrUnsupportedSessionFormat = errors.New("неизвестный формат MTProto-сессии")

type sessionDecoder struct {
	format SessionFormat
	decode func([]byte) ([]byte, error)
}

// Порядок важен: gotd JSON и JSON аккаунта тоже являются валидным JSON.
var sessionDecoders = []sessionDecoder{
	{FormatGotd, decodeGotd},
	{FormatTelethonAccount, decodeTelethonAccount},
	{FormatTelethonRows, decodeTelethonRows},
	{FormatTelethonString, decodeTelethonString},
}

// NormalizeSession приводит сессию к JSON, который понимает session.Storage из gotd.
func NormalizeSession(raw []byte) ([]byte, SessionFormat, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, "", errors.New("MTProto-сессия пустая")
	}
	for _, d := range sessionDecoders {
		if out, err := d.decode(trimmed); err == nil {
			return out, d.format, nil
		}
	}
	return nil, "", ErrUnsupportedSessionFormat
}

func decodeGotd(raw []byte) ([]byte, error) {
	var envelope struct {
		Version int             `json:"Version"`
		Data    json.RawMessage `json:"Data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Version == 0 || len(envelope.Data) == 0 {
		return nil, errors.New("not a gotd session")
	}
	return append([]byte(nil), raw...), nil
}

func decodeTelethonAccount(raw []byte) ([]byte, error) {
	var account struct {
		ExtraParams string `json:"extra_params"`
		Session     string `json:"session"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, err
	}
	for _, candidate := range []string{account.ExtraParams, account.Session} {
		if candidate != "" {
			return decodeTelethonString([]byte(candidate))
		}
	}
	return nil, errors.New("account JSON has no session string")
}

type telethonRow struct {
	DCID          int    `json:"dc_id"`
	ServerAddress string `json:"server_address"`
	Port          int    `json:"port"`
	AuthKey       string `json:"auth_key"`
}

func decodeTelethonRows(raw []byte) ([]byte, error) {
	var rows []telethonRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.AuthKey == "" || row.ServerAddress == "" || row.Port == 0 {
			continue
		}
		return sessionFromAuthKey(row)
	}
	return nil, errors.New("telethon rows contain no auth key")
}

func decodeTelethonString(raw []byte) ([]byte, error) {
	candidate := strings.Trim(strings.TrimSpace(string(raw)), "\"'")
	if candidate == "" {
		return nil, errors.New("telethon string is empty")
	}
	data, err := session.TelethonSession(candidate)
	if err != nil {
		return nil, err
	}
	if data.Config.ThisDC == 0 {
		data.Config.ThisDC = data.DC
	}
	if data.Addr != "" && len(data.Config.DCOptions) == 0 {
		if host, port, ok := splitAddr(data.Addr); ok {
			data.Config.DCOptions = []tg.DCOption{{ID: data.DC, IPAddress: host, Port: port}}
		}
	}
	return encodeSession(*data)
}

func splitAddr(addr string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return host, port, true
}

func sessionFromAuthKey(row telethonRow) ([]byte, error) {
	rawKey, err := hex.DecodeString(strings.Trim(strings.TrimSpace(row.AuthKey), "'\""))
	if err != nil {
		return nil, fmt.Errorf("decode auth_key: %w", err)
	}
	var key crypto.Key
	if len(rawKey) != len(key) {
		return nil, fmt.Errorf("auth_key должен быть %d байт, получено %d", len(key), len(rawKey))
	}
	copy(key[:], rawKey)
	id := key.WithID().ID

	return encodeSession(session.Data{
		Config: session.Config{
			ThisDC:    row.DCID,
			DCOptions: []tg.DCOption{{ID: row.DCID, IPAddress: row.ServerAddress, Port: row.Port}},
		},
		DC:        row.DCID,
		Addr:      net.JoinHostPort(row.ServerAddress, strconv.Itoa(row.Port)),
		AuthKey:   append([]byte(nil), key[:]...),
		AuthKeyID: append([]byte(nil), id[:]...),
	})
}

func encodeSession(data session.Data) ([]byte, error) {
	return json.Marshal(struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}{Version: 1, Data: data})
}
