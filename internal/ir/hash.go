package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRequirement = "velora/requirement/v1"
	DomainGeneration  = "velora/generation/v1"
	DomainTestCase    = "velora/testcase/v1"
	DomainPolicy      = "velora/policy/v1"
	DomainResult      = "velora/result/v1"
)

// testCaseIDHexLen is the number of hex digits kept in a test case id.
const testCaseIDHexLen = 12

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashRequirement returns the fingerprint of already-normalized requirement text.
func HashRequirement(normalized string) string {
	return hashWithDomain(DomainRequirement, []byte(normalized))
}

// HashResult returns the digest of a canonical result document.
func HashResult(canonical []byte) string {
	return hashWithDomain(DomainResult, canonical)
}

// CacheKey identifies a generation: the same requirement content under the
// same generation policy always maps to the same key.
type CacheKey struct {
	Fingerprint   string `json:"fingerprint"`
	PolicyVersion string `json:"policy_version"`
}

// String returns the content-addressed key used by every cache tier.
func (k CacheKey) String() string {
	canonical, err := MarshalCanonical(IRObject{
		"fingerprint":    IRString(k.Fingerprint),
		"policy_version": IRString(k.PolicyVersion),
	})
	if err != nil {
		// Only strings are marshaled; this cannot fail.
		panic(fmt.Sprintf("CacheKey: %v", err))
	}
	return hashWithDomain(DomainGeneration, canonical)
}

// PolicyVersion derives the generation-policy version from an operator label,
// the test case template and the model. Changing any of them moves every
// requirement to a new cache key.
func PolicyVersion(label string, tmpl Template, model string) (string, error) {
	fields := make(IRArray, len(tmpl))
	for i, f := range tmpl {
		fields[i] = IRObject{"name": IRString(f.Name), "default": IRString(f.Default)}
	}
	canonical, err := MarshalCanonical(IRObject{
		"label":    IRString(label),
		"template": fields,
		"model":    IRString(model),
	})
	if err != nil {
		return "", fmt.Errorf("PolicyVersion: failed to marshal: %w", err)
	}
	return label + "-" + hashWithDomain(DomainPolicy, canonical)[:8], nil
}

// TestCaseID computes the content-addressed id of the index-th test case
// generated for a requirement under a cache key.
func TestCaseID(requirementID, cacheKey string, index int) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"requirement_id": IRString(requirementID),
		"cache_key":      IRString(cacheKey),
		"index":          IRInt(index),
	})
	if err != nil {
		return "", fmt.Errorf("TestCaseID: failed to marshal: %w", err)
	}
	sum := hashWithDomain(DomainTestCase, canonical)
	return "TC-" + strings.ToUpper(sum[:testCaseIDHexLen]), nil
}

// TestCaseIDs returns ids for n test cases in generation order.
func TestCaseIDs(requirementID, cacheKey string, n int) ([]string, error) {
	ids := make([]string, n)
	for i := range ids {
		id, err := TestCaseID(requirementID, cacheKey, i)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// MustPolicyVersion is like PolicyVersion but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPolicyVersion(label string, tmpl Template, model string) string {
	v, err := PolicyVersion(label, tmpl, model)
	if err != nil {
		panic(err)
	}
	return v
}
