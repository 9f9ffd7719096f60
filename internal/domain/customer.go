package domain

import (
	"time"

	"github.com/google/uuid"
)

// CustomerPII is the plaintext form of a customer's protected fields.
type CustomerPII struct {
	FullName       string
	IdentityNumber string
	Phone          string
	DateOfBirth    string
	Address        string
	NextOfKinName  string
	NextOfKinPhone string
	GuarantorName  string
	GuarantorPhone string
}

// Customer is the stored form: every PII attribute is ciphertext, with
// search hashes kept alongside the fields that support exact match.
type Customer struct {
	ID                 uuid.UUID
	FullNameEnc        string
	IdentityNumberEnc  string
	IdentityNumberHash string
	PhoneEnc           string
	PhoneHash          string
	DateOfBirthEnc     string
	AddressEnc         string
	NextOfKinNameEnc   string
	NextOfKinPhoneEnc  string
	GuarantorNameEnc   string
	GuarantorPhoneEnc  string
	KeyVersion         int
	CreatedBy          uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EncryptedFields exposes the ciphertext columns for bulk operations such as key rotation.
func (c *Customer) EncryptedFields() []*string {
	return []*string{
		&c.FullNameEnc,
		&c.IdentityNumberEnc,
		&c.PhoneEnc,
		&c.DateOfBirthEnc,
		&c.AddressEnc,
		&c.NextOfKinNameEnc,
		&c.NextOfKinPhoneEnc,
		&c.GuarantorNameEnc,
		&c.GuarantorPhoneEnc,
	}
}
