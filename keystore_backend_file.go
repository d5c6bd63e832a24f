package awmkit

import (
	"bufio"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// FileBackend implements KeyBackend on top of POSIX files with flock-guarded
// writes, the layout and locking discipline carried over from this tree's
// original append-only log store. Slot keys are encrypted at rest with
// ChaCha20-Poly1305 under a key derived from a passphrase via HKDF-SHA256;
// this stands in for an OS-native keyring/keychain backend, which is out
// of scope here.
//
// File layout, one fixed-size record per slot in slots.dat:
//
//	[1]byte:  occupied flag
//	[2]byte:  label length (u16 BE)
//	[64]byte: label, zero-padded
//	[12]byte: nonce
//	[48]byte: sealed key (32-byte key + 16-byte Poly1305 tag)
//
// active.dat holds a single big-endian u32 slot index.
type FileBackend struct {
	dir        string
	slotsFile  *os.File
	activeFile *os.File
	aead       fileAEAD
	mu         sync.Mutex
}

type fileAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

const (
	slotsFileName     = "slots.dat"
	activeFileName    = "active.dat"
	fileLabelMax      = 64
	fileSealedKeySize = KeySize + chacha20poly1305.Overhead
	fileRecordSize    = 1 + 2 + fileLabelMax + chacha20poly1305.NonceSize + fileSealedKeySize
)

// OpenFileBackend opens or creates a key-store directory encrypted under a
// key derived from passphrase.
func OpenFileBackend(dir string, passphrase []byte) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	aeadKey := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, passphrase, []byte("awmkit-keystore-v1"), nil)
	if _, err := io.ReadFull(kdf, aeadKey); err != nil {
		return nil, fmt.Errorf("derive backend key: %w", err)
	}
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	slotsPath := filepath.Join(dir, slotsFileName)
	slotsFile, err := os.OpenFile(slotsPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("open slots file: %w", err)
	}
	activePath := filepath.Join(dir, activeFileName)
	activeFile, err := os.OpenFile(activePath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		_ = slotsFile.Close()
		return nil, fmt.Errorf("open active file: %w", err)
	}

	return &FileBackend{dir: dir, slotsFile: slotsFile, activeFile: activeFile, aead: aead}, nil
}

func (b *FileBackend) Label() string { return fmt.Sprintf("file:%s", b.dir) }

func (b *FileBackend) LoadAll() (map[int]storedSlot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.slotsFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek slots file: %w", err)
	}
	reader := bufio.NewReader(b.slotsFile)
	out := make(map[int]storedSlot)
	for idx := 0; ; idx++ {
		rec := make([]byte, fileRecordSize)
		if _, err := io.ReadFull(reader, rec); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read slot %d: %w", idx, err)
		}
		if rec[0] == 0 {
			continue
		}
		labelLen := int(binary.BigEndian.Uint16(rec[1:3]))
		if labelLen > fileLabelMax {
			return nil, fmt.Errorf("slot %d: corrupt label length", idx)
		}
		label := string(rec[3 : 3+labelLen])
		nonce := rec[3+fileLabelMax : 3+fileLabelMax+chacha20poly1305.NonceSize]
		sealed := rec[3+fileLabelMax+chacha20poly1305.NonceSize:]
		key, err := b.aead.Open(nil, nonce, sealed, nil)
		if err != nil {
			return nil, fmt.Errorf("slot %d: decrypt: %w", idx, err)
		}
		out[idx] = storedSlot{Key: key, Label: label}
	}
	return out, nil
}

func (b *FileBackend) SaveSlot(index int, key []byte, label string) error {
	if len(label) > fileLabelMax {
		return fmt.Errorf("label too long: %d > %d", len(label), fileLabelMax)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := syscall.Flock(int(b.slotsFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock slots file: %w", err)
	}
	defer syscall.Flock(int(b.slotsFile.Fd()), syscall.LOCK_UN)

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nil, nonce, key, nil)

	rec := make([]byte, fileRecordSize)
	rec[0] = 1
	binary.BigEndian.PutUint16(rec[1:3], uint16(len(label)))
	copy(rec[3:3+fileLabelMax], label)
	copy(rec[3+fileLabelMax:3+fileLabelMax+chacha20poly1305.NonceSize], nonce)
	copy(rec[3+fileLabelMax+chacha20poly1305.NonceSize:], sealed)

	if _, err := b.slotsFile.WriteAt(rec, int64(index)*int64(fileRecordSize)); err != nil {
		return fmt.Errorf("write slot %d: %w", index, err)
	}
	return b.slotsFile.Sync()
}

func (b *FileBackend) DeleteSlot(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := syscall.Flock(int(b.slotsFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock slots file: %w", err)
	}
	defer syscall.Flock(int(b.slotsFile.Fd()), syscall.LOCK_UN)

	rec := make([]byte, fileRecordSize)
	if _, err := b.slotsFile.WriteAt(rec, int64(index)*int64(fileRecordSize)); err != nil {
		return fmt.Errorf("clear slot %d: %w", index, err)
	}
	return b.slotsFile.Sync()
}

func (b *FileBackend) LoadActive() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.activeFile.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek active file: %w", err)
	}
	var buf [4]byte
	if _, err := io.ReadFull(b.activeFile, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, nil
		}
		return 0, fmt.Errorf("read active: %w", err)
	}
	return int(binary.BigEndian.Uint32(buf[:])), nil
}

func (b *FileBackend) SaveActive(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.activeFile.Truncate(0); err != nil {
		return fmt.Errorf("truncate active file: %w", err)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(index))
	if _, err := b.activeFile.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("write active: %w", err)
	}
	return b.activeFile.Sync()
}

// Close releases the backend's file handles.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err1 := b.slotsFile.Close()
	err2 := b.activeFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
