// Package policy provides the cost policy store: typed per-kind policies with
// built-in company defaults, CUE and YAML policy documents, hot reload, and an
// OPA gate for rego-expressed rules.
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// ErrNotFound is returned by Store.Lookup when no policy covers a kind.
var ErrNotFound = errors.New("no policy for resource kind")

// CostPolicy is the declarative rule set for one resource kind. Zero values
// mean "no constraint" for numeric thresholds and "no restriction" for lists.
type CostPolicy struct {
	// Kind is the resource kind this policy covers.
	Kind optimizer.ResourceKind `json:"kind" yaml:"kind" validate:"required"`

	// Version identifies the policy document revision.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Rationale explains the policy for report and rejection messages.
	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`

	// DisallowedTypePatterns are glob patterns ("r5.*", "db.m5.*") matched
	// against the instance type or class.
	DisallowedTypePatterns []string `json:"disallowed_type_patterns,omitempty" yaml:"disallowed_type_patterns,omitempty"`

	// RecommendedTypes are the preferred types for this kind.
	RecommendedTypes []string `json:"recommended_types,omitempty" yaml:"recommended_types,omitempty"`

	// MaxMemoryMB caps function memory.
	MaxMemoryMB int `json:"max_memory_mb,omitempty" yaml:"max_memory_mb,omitempty" validate:"gte=0"`

	// MaxTimeoutSeconds caps function timeout.
	MaxTimeoutSeconds int `json:"max_timeout_seconds,omitempty" yaml:"max_timeout_seconds,omitempty" validate:"gte=0"`

	// MaxReservedConcurrency caps function reserved concurrency.
	MaxReservedConcurrency int `json:"max_reserved_concurrency,omitempty" yaml:"max_reserved_concurrency,omitempty" validate:"gte=0"`

	// MaxSizeGB caps volume size.
	MaxSizeGB int `json:"max_size_gb,omitempty" yaml:"max_size_gb,omitempty" validate:"gte=0"`

	// MaxAllocatedStorageGB caps database allocated storage.
	MaxAllocatedStorageGB int `json:"max_allocated_storage_gb,omitempty" yaml:"max_allocated_storage_gb,omitempty" validate:"gte=0"`

	// MaxBackupRetentionDays caps database backup retention.
	MaxBackupRetentionDays int `json:"max_backup_retention_days,omitempty" yaml:"max_backup_retention_days,omitempty" validate:"gte=0"`

	// DisallowedStorageTypes lists forbidden storage types (io1, io2).
	DisallowedStorageTypes []string `json:"disallowed_storage_types,omitempty" yaml:"disallowed_storage_types,omitempty"`

	// LifecycleRequired requires object store buckets to carry a lifecycle
	// configuration.
	LifecycleRequired bool `json:"lifecycle_required,omitempty" yaml:"lifecycle_required,omitempty"`

	// AllowedStorageClasses restricts object store lifecycle transition
	// targets when non-empty.
	AllowedStorageClasses []string `json:"allowed_storage_classes,omitempty" yaml:"allowed_storage_classes,omitempty"`

	// MultiAZAllowed permits multi-AZ database deployments.
	MultiAZAllowed bool `json:"multi_az_allowed,omitempty" yaml:"multi_az_allowed,omitempty"`

	// ExceptionTags maps tag names to values that exempt a resource from
	// the disallowed-type rules (e.g. Environment: [production, prod]).
	ExceptionTags map[string][]string `json:"exception_tags,omitempty" yaml:"exception_tags,omitempty"`

	compiled []*regexp.Regexp
}

// Violation is one policy rule broken by a configuration.
type Violation struct {
	// Rule names the rule that was broken.
	Rule string `json:"rule"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Resource is the resource ID involved, if known.
	Resource string `json:"resource,omitempty"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// Compile precompiles the disallowed type globs. Called by the store on load;
// a policy constructed by hand must be compiled before TypeAllowed is used.
func (p *CostPolicy) Compile() error {
	p.compiled = p.compiled[:0]
	for _, pattern := range p.DisallowedTypePatterns {
		re, err := compileGlob(pattern)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
		p.compiled = append(p.compiled, re)
	}
	return nil
}

// compileGlob turns a glob pattern into an anchored regexp. Dots are literal,
// "*" matches any run of characters.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, ".*")
	return regexp.Compile("^" + quoted + "$")
}

// TypeAllowed reports whether a type or class passes the disallowed patterns.
func (p *CostPolicy) TypeAllowed(t string) bool {
	for _, re := range p.compiled {
		if re.MatchString(t) {
			return false
		}
	}
	return true
}

// Exempt reports whether the given resource tags match an exception rule.
// Tags arrive in config maps under "tag:<Name>" keys.
func (p *CostPolicy) Exempt(config map[string]string) bool {
	for name, values := range p.ExceptionTags {
		got, ok := config["tag:"+name]
		if !ok {
			continue
		}
		for _, v := range values {
			if strings.EqualFold(got, v) {
				return true
			}
		}
	}
	return false
}

// CheckTarget evaluates a target configuration against the policy and returns
// every violated rule. Tag exemptions are not applied here; callers decide
// whether the resource's current tags exempt it.
func (p *CostPolicy) CheckTarget(target map[string]string) []Violation {
	var violations []Violation

	switch p.Kind {
	case optimizer.KindCompute:
		if t := target["instance_type"]; t != "" && !p.TypeAllowed(t) {
			violations = append(violations, Violation{
				Rule:    "disallowed-instance-type",
				Message: fmt.Sprintf("instance type %q is disallowed by policy", t),
			})
		}

	case optimizer.KindFunction:
		violations = append(violations, p.checkCeiling(target, "memory_mb", p.MaxMemoryMB, "max-memory")...)
		violations = append(violations, p.checkCeiling(target, "timeout_seconds", p.MaxTimeoutSeconds, "max-timeout")...)
		violations = append(violations, p.checkCeiling(target, "reserved_concurrency", p.MaxReservedConcurrency, "max-reserved-concurrency")...)

	case optimizer.KindObjectStore:
		if class := target["lifecycle_storage_class"]; class != "" && len(p.AllowedStorageClasses) > 0 {
			if !contains(p.AllowedStorageClasses, class) {
				violations = append(violations, Violation{
					Rule:    "disallowed-storage-class",
					Message: fmt.Sprintf("lifecycle storage class %q is not in the allowed set", class),
				})
			}
		}
		if p.LifecycleRequired && target["lifecycle_storage_class"] == "" {
			violations = append(violations, Violation{
				Rule:    "lifecycle-required",
				Message: "bucket policy requires a lifecycle configuration",
			})
		}

	case optimizer.KindDatabase:
		if c := target["instance_class"]; c != "" && !p.TypeAllowed(c) {
			violations = append(violations, Violation{
				Rule:    "disallowed-instance-class",
				Message: fmt.Sprintf("database instance class %q is disallowed by policy", c),
			})
		}
		if st := target["storage_type"]; st != "" && contains(p.DisallowedStorageTypes, st) {
			violations = append(violations, Violation{
				Rule:    "disallowed-storage-type",
				Message: fmt.Sprintf("storage type %q is disallowed by policy", st),
			})
		}
		violations = append(violations, p.checkCeiling(target, "allocated_storage_gb", p.MaxAllocatedStorageGB, "max-allocated-storage")...)
		violations = append(violations, p.checkCeiling(target, "backup_retention_days", p.MaxBackupRetentionDays, "max-backup-retention")...)
		if target["multi_az"] == "true" && !p.MultiAZAllowed {
			violations = append(violations, Violation{
				Rule:    "multi-az-disallowed",
				Message: "multi-AZ deployment is disallowed by policy",
			})
		}

	case optimizer.KindVolume:
		if vt := target["volume_type"]; vt != "" && contains(p.DisallowedStorageTypes, vt) {
			violations = append(violations, Violation{
				Rule:    "disallowed-volume-type",
				Message: fmt.Sprintf("volume type %q is disallowed by policy", vt),
			})
		}
		violations = append(violations, p.checkCeiling(target, "size_gb", p.MaxSizeGB, "max-volume-size")...)
	}

	return violations
}

func (p *CostPolicy) checkCeiling(target map[string]string, key string, max int, rule string) []Violation {
	if max <= 0 {
		return nil
	}
	raw, ok := target[key]
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return []Violation{{
			Rule:    rule,
			Message: fmt.Sprintf("%s value %q is not numeric", key, raw),
		}}
	}
	if v > max {
		return []Violation{{
			Rule:    rule,
			Message: fmt.Sprintf("%s %d exceeds policy maximum %d", key, v, max),
		}}
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Document is one policy file: a version stamp plus policies keyed by kind.
type Document struct {
	Version  string                 `json:"version,omitempty" yaml:"version,omitempty"`
	Policies map[string]*CostPolicy `json:"policies" yaml:"policies"`
}
