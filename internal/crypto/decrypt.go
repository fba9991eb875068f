package crypto

import (
	"github.com/AlexZinkM/split-custody/internal/model"
)

// Decrypt opens ciphertext under key. Any authentication failure is ErrDecrypt.
func Decrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != nonceLen {
		return nil, ErrDecrypt
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// DecryptShareA opens the wallet's Share A with credential.
// The caller must clear the returned share.
func DecryptShareA(w *model.WalletMaterial, credential []byte) ([]byte, error) {
	key, err := DeriveShareAKey(credential, ParamsFor(w))
	if err != nil {
		return nil, err
	}
	defer clear(key) // wipe derived key

	return Decrypt(key, w.ShareANonce, w.ShareACiphertext, nil)
}
