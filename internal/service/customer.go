package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fieldcrypt"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
)

type RegisterCustomerCommand struct {
	PII domain.CustomerPII
}

// CustomerView is a customer as the caller is allowed to see it. Fields that
// fail to decrypt read as fieldcrypt.Unavailable instead of failing the call.
type CustomerView struct {
	ID             uuid.UUID
	FullName       string
	IdentityNumber string
	Phone          string
	DateOfBirth    string
	Address        string
	NextOfKinName  string
	NextOfKinPhone string
	GuarantorName  string
	GuarantorPhone string
	Masked         bool
	KeyVersion     int
	CreatedAt      time.Time
}

type CustomerService struct {
	customers customerRepository
	cipher    fieldCipher
	hasher    searchHasher
	policy    *policy.Policy
	audit     auditRecorder
}

func NewCustomerService(customers customerRepository, cipher fieldCipher, hasher searchHasher, pol *policy.Policy, rec auditRecorder) *CustomerService {
	return &CustomerService{customers: customers, cipher: cipher, hasher: hasher, policy: pol, audit: rec}
}

func (s *CustomerService) Register(ctx context.Context, actor domain.Actor, cmd RegisterCustomerCommand) (*CustomerView, error) {
	if !s.policy.Can(actor.Role, policy.OpOnboard) {
		return nil, fmt.Errorf("Register: %w", domain.DenyPermission(fmt.Sprintf("%s cannot onboard customers", actor.Role)))
	}

	pii := trimPII(cmd.PII)
	if pii.FullName == "" || pii.IdentityNumber == "" || pii.Phone == "" {
		return nil, fmt.Errorf("Register: full name, identity number and phone are required: %w", domain.ErrInvalidRequest)
	}
	if pii.DateOfBirth != "" {
		if _, err := time.Parse(time.DateOnly, pii.DateOfBirth); err != nil {
			return nil, fmt.Errorf("Register: date of birth must be YYYY-MM-DD: %w", domain.ErrInvalidRequest)
		}
	}

	now := time.Now().UTC()
	c := &domain.Customer{
		ID:                 uuid.New(),
		IdentityNumberHash: s.hasher.SearchHash(pii.IdentityNumber),
		PhoneHash:          s.hasher.SearchHash(pii.Phone),
		KeyVersion:         s.cipher.ActiveVersion(),
		CreatedBy:          actor.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// A record is either fully sealed or not written at all.
	plain := []string{
		pii.FullName, pii.IdentityNumber, pii.Phone, pii.DateOfBirth, pii.Address,
		pii.NextOfKinName, pii.NextOfKinPhone, pii.GuarantorName, pii.GuarantorPhone,
	}
	for i, dst := range c.EncryptedFields() {
		enc, err := s.cipher.Encrypt(plain[i])
		if err != nil {
			return nil, fmt.Errorf("Register: encrypt: %w", err)
		}
		*dst = enc
	}

	if err := s.customers.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     domain.AuditActionCreate,
		EntityType: "customer",
		EntityID:   c.ID.String(),
		Repr:       fieldcrypt.MaskName(pii.FullName),
		Changes: audit.Created(map[string]any{
			"full_name":       pii.FullName,
			"identity_number": pii.IdentityNumber,
			"phone":           pii.Phone,
			"date_of_birth":   pii.DateOfBirth,
			"address":         pii.Address,
			"next_of_kin":     pii.NextOfKinName,
			"guarantor":       pii.GuarantorName,
			"key_version":     c.KeyVersion,
		}),
	})

	logging.FromContext(ctx).Info("customer registered", "customer_id", c.ID, "key_version", c.KeyVersion)
	return s.view(ctx, actor, c), nil
}

func (s *CustomerService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*CustomerView, error) {
	if err := s.canLookUp(actor); err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	c, err := s.customers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return s.view(ctx, actor, c), nil
}

// FindByIdentityNumber is an exact-match lookup through the search hash.
func (s *CustomerService) FindByIdentityNumber(ctx context.Context, actor domain.Actor, identityNumber string) (*CustomerView, error) {
	if err := s.canLookUp(actor); err != nil {
		return nil, fmt.Errorf("FindByIdentityNumber: %w", err)
	}
	if strings.TrimSpace(identityNumber) == "" {
		return nil, fmt.Errorf("FindByIdentityNumber: %w", domain.ErrInvalidRequest)
	}
	c, err := s.customers.GetByIdentityHash(ctx, s.hasher.SearchHash(identityNumber))
	if err != nil {
		return nil, fmt.Errorf("FindByIdentityNumber: %w", err)
	}
	return s.view(ctx, actor, c), nil
}

// FindByPhone may return several customers: phone numbers are not unique.
func (s *CustomerService) FindByPhone(ctx context.Context, actor domain.Actor, phone string) ([]CustomerView, error) {
	if err := s.canLookUp(actor); err != nil {
		return nil, fmt.Errorf("FindByPhone: %w", err)
	}
	if strings.TrimSpace(phone) == "" {
		return nil, fmt.Errorf("FindByPhone: %w", domain.ErrInvalidRequest)
	}
	found, err := s.customers.ListByPhoneHash(ctx, s.hasher.SearchHash(phone))
	if err != nil {
		return nil, fmt.Errorf("FindByPhone: %w", err)
	}
	views := make([]CustomerView, 0, len(found))
	for i := range found {
		views = append(views, *s.view(ctx, actor, &found[i]))
	}
	return views, nil
}

func (s *CustomerService) canLookUp(actor domain.Actor) error {
	if s.policy.Can(actor.Role, policy.OpOnboard) || s.policy.Can(actor.Role, policy.OpViewPII) {
		return nil
	}
	return domain.DenyPermission(fmt.Sprintf("%s cannot look up customers", actor.Role))
}

func (s *CustomerService) view(ctx context.Context, actor domain.Actor, c *domain.Customer) *CustomerView {
	full := s.policy.Can(actor.Role, policy.OpViewPII)
	log := logging.FromContext(ctx)

	field := func(name, ciphertext string, mask func(string) string) string {
		plain, err := s.cipher.Decrypt(ciphertext)
		if err != nil {
			log.Warn("customer field unavailable", "customer_id", c.ID, "field", name, "error", err)
			return fieldcrypt.Unavailable
		}
		if full || plain == "" {
			return plain
		}
		return mask(plain)
	}

	return &CustomerView{
		ID:             c.ID,
		FullName:       field("full_name", c.FullNameEnc, fieldcrypt.MaskName),
		IdentityNumber: field("identity_number", c.IdentityNumberEnc, fieldcrypt.MaskIdentityNumber),
		Phone:          field("phone", c.PhoneEnc, fieldcrypt.MaskPhone),
		DateOfBirth:    field("date_of_birth", c.DateOfBirthEnc, fieldcrypt.MaskDateOfBirth),
		Address:        field("address", c.AddressEnc, fieldcrypt.MaskAddress),
		NextOfKinName:  field("next_of_kin_name", c.NextOfKinNameEnc, fieldcrypt.MaskName),
		NextOfKinPhone: field("next_of_kin_phone", c.NextOfKinPhoneEnc, fieldcrypt.MaskPhone),
		GuarantorName:  field("guarantor_name", c.GuarantorNameEnc, fieldcrypt.MaskName),
		GuarantorPhone: field("guarantor_phone", c.GuarantorPhoneEnc, fieldcrypt.MaskPhone),
		Masked:         !full,
		KeyVersion:     c.KeyVersion,
		CreatedAt:      c.CreatedAt,
	}
}

func trimPII(p domain.CustomerPII) domain.CustomerPII {
	return domain.CustomerPII{
		FullName:       strings.TrimSpace(p.FullName),
		IdentityNumber: strings.TrimSpace(p.IdentityNumber),
		Phone:          strings.TrimSpace(p.Phone),
		DateOfBirth:    strings.TrimSpace(p.DateOfBirth),
		Address:        strings.TrimSpace(p.Address),
		NextOfKinName:  strings.TrimSpace(p.NextOfKinName),
		NextOfKinPhone: strings.TrimSpace(p.NextOfKinPhone),
		GuarantorName:  strings.TrimSpace(p.GuarantorName),
		GuarantorPhone: strings.TrimSpace(p.GuarantorPhone),
	}
}
