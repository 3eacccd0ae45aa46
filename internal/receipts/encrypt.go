package receipts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"filippo.io/age"
)

// Encrypting seals receipts with an age passphrase before handing them to
// the underlying store.
type Encrypting struct {
	inner     Store
	recipient *age.ScryptRecipient
	identity  *age.ScryptIdentity
}

// NewEncrypting wraps inner. workFactor tunes scrypt; 0 keeps age's default.
func NewEncrypting(inner Store, passphrase string, workFactor int) (*Encrypting, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("receipt encryption: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("receipt decryption: %w", err)
	}
	return &Encrypting{inner: inner, recipient: recipient, identity: identity}, nil
}

func (e *Encrypting) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, e.recipient)
	if err != nil {
		return fmt.Errorf("encrypt receipt: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("encrypt receipt: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("encrypt receipt: %w", err)
	}
	return e.inner.Put(ctx, key, &sealed, contentType)
}

func (e *Encrypting) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plain, err := age.Decrypt(rc, e.identity)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("decrypt receipt %s: %w", key, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{plain, rc}, nil
}

func (e *Encrypting) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}
