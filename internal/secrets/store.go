package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Session tokens are kept in a per-user file (0600) with AES-GCM obfuscation,
// one entry per API base URL. Not a replacement for an OS keychain.

const fileName = "sessions.json"

// ErrNotFound is returned when no token is stored for a base URL.
var ErrNotFound = errors.New("no stored session")

type sessionFile struct {
	Sessions map[string]entry `json:"sessions"` // base url -> entry
}

type entry struct {
	Token   string    `json:"token"` // base64(ciphertext)
	SavedAt time.Time `json:"saved_at"`
}

// Store persists bearer tokens under Dir. An empty Dir means the user config
// directory.
type Store struct {
	Dir string
}

func (s Store) StoreToken(baseURL, token string) error {
	key := norm(baseURL)
	if key == "" {
		return fmt.Errorf("base url required")
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token required")
	}
	path, err := s.filePath()
	if err != nil {
		return err
	}
	sf, _ := load(path)
	if sf.Sessions == nil {
		sf.Sessions = map[string]entry{}
	}
	ct, err := encrypt([]byte(token))
	if err != nil {
		return err
	}
	sf.Sessions[key] = entry{Token: base64.StdEncoding.EncodeToString(ct), SavedAt: time.Now().UTC()}
	return save(path, sf)
}

func (s Store) FetchToken(baseURL string) (string, error) {
	key := norm(baseURL)
	if key == "" {
		return "", fmt.Errorf("base url required")
	}
	path, err := s.filePath()
	if err != nil {
		return "", err
	}
	sf, err := load(path)
	if err != nil {
		return "", err
	}
	e, ok := sf.Sessions[key]
	if !ok {
		return "", ErrNotFound
	}
	raw, err := base64.StdEncoding.DecodeString(e.Token)
	if err != nil {
		return "", err
	}
	pt, err := decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func (s Store) DeleteToken(baseURL string) error {
	key := norm(baseURL)
	if key == "" {
		return fmt.Errorf("base url required")
	}
	path, err := s.filePath()
	if err != nil {
		return err
	}
	sf, err := load(path)
	if err != nil {
		return err
	}
	if _, ok := sf.Sessions[key]; !ok {
		return ErrNotFound
	}
	delete(sf.Sessions, key)
	return save(path, sf)
}

func (s Store) filePath() (string, error) {
	dir := s.Dir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "deliverydesk")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil { // restrict directory
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

func load(path string) (sessionFile, error) {
	var sf sessionFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sessionFile{}, nil
		}
		return sf, err
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		return sf, err
	}
	return sf, nil
}

func save(path string, sf sessionFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func norm(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(strings.ToLower(baseURL)), "/")
}

func masterKey() []byte {
	base := fmt.Sprintf("deliverydesk-%s-%s", runtime.GOOS, os.Getenv("USER"))
	hash := sha256.Sum256([]byte(base))
	return hash[:]
}

func newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(masterKey())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encrypt(plain []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	body := ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
