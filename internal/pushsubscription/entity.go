package pushsubscription

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type Subscription struct {
	ID        string    `yaml:"id" json:"id"`
	Endpoint  string    `yaml:"endpoint" json:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key" json:"p256dh_key"`
	AuthKey   string    `yaml:"auth_key" json:"auth_key"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// IDForEndpoint derives a stable id so registering an endpoint twice
// replaces the earlier keys.
func IDForEndpoint(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:16])
}
