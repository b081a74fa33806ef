package policy

import "github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"

// DefaultVersion stamps the built-in company policy set.
const DefaultVersion = "2025-Q1"

// Defaults returns the built-in company cost policies. Documents loaded from
// disk override these per kind.
func Defaults() map[optimizer.ResourceKind]*CostPolicy {
	return map[optimizer.ResourceKind]*CostPolicy{
		optimizer.KindCompute:     defaultComputePolicy(),
		optimizer.KindObjectStore: defaultObjectStorePolicy(),
		optimizer.KindFunction:    defaultFunctionPolicy(),
		optimizer.KindDatabase:    defaultDatabasePolicy(),
		optimizer.KindVolume:      defaultVolumePolicy(),
	}
}

func defaultComputePolicy() *CostPolicy {
	return &CostPolicy{
		Kind:      optimizer.KindCompute,
		Version:   DefaultVersion,
		Rationale: "Only the T3 family up to medium size is approved; R5, M5, C5, and T2 families are not.",
		DisallowedTypePatterns: []string{
			"r5.*", "r5a.*", "r5b.*", "r5n.*", "r6i.*", "r6a.*",
			"m5.*", "m5a.*", "m5n.*", "m6i.*",
			"c5.*", "c5a.*", "c5n.*", "c6i.*",
			"t2.*", "t3.large", "t3.xlarge", "t3.2xlarge",
		},
		RecommendedTypes: []string{"t3.micro", "t3.small", "t3.medium"},
		ExceptionTags: map[string][]string{
			"Environment":      {"production", "prod"},
			"CriticalWorkload": {"true"},
		},
	}
}

func defaultObjectStorePolicy() *CostPolicy {
	return &CostPolicy{
		Kind:                  optimizer.KindObjectStore,
		Version:               DefaultVersion,
		Rationale:             "Intelligent-Tiering gives automatic cost optimization; every bucket needs a lifecycle policy.",
		LifecycleRequired:     true,
		AllowedStorageClasses: []string{"INTELLIGENT_TIERING", "GLACIER_IR", "STANDARD_IA", "GLACIER"},
	}
}

func defaultFunctionPolicy() *CostPolicy {
	return &CostPolicy{
		Kind:                   optimizer.KindFunction,
		Version:                DefaultVersion,
		Rationale:              "Most functions should finish within 60s; ceilings prevent runaway costs.",
		MaxMemoryMB:            3008,
		MaxTimeoutSeconds:      300,
		MaxReservedConcurrency: 100,
	}
}

func defaultDatabasePolicy() *CostPolicy {
	return &CostPolicy{
		Kind:      optimizer.KindDatabase,
		Version:   DefaultVersion,
		Rationale: "T3 instances cover most workloads; gp3 replaces provisioned IOPS storage.",
		DisallowedTypePatterns: []string{
			"db.r5.*", "db.r5b.*", "db.r6i.*", "db.m5.*", "db.m6i.*",
		},
		RecommendedTypes:       []string{"db.t3.micro", "db.t3.small", "db.t3.medium"},
		DisallowedStorageTypes: []string{"io1", "io2"},
		MaxAllocatedStorageGB:  100,
		MaxBackupRetentionDays: 7,
		MultiAZAllowed:         false,
		ExceptionTags: map[string][]string{
			"Environment":      {"production", "prod"},
			"CriticalWorkload": {"true"},
		},
	}
}

func defaultVolumePolicy() *CostPolicy {
	return &CostPolicy{
		Kind:                   optimizer.KindVolume,
		Version:                DefaultVersion,
		Rationale:              "gp3 gives good performance at lower cost than provisioned IOPS.",
		DisallowedStorageTypes: []string{"io1", "io2"},
		RecommendedTypes:       []string{"gp3"},
		MaxSizeGB:              1000,
	}
}

// BuiltinRules returns the built-in rego rules evaluated by the Gate. Each
// rule receives {"recommendation": ..., "policy": ...} as input and emits
// violations through a deny set.
func BuiltinRules() []Rule {
	return []Rule{
		disallowedTypeRule(),
		lifecycleRequiredRule(),
		functionCeilingsRule(),
		storageTypeRule(),
		savingsRule(),
	}
}

func disallowedTypeRule() Rule {
	return Rule{
		Name:        "disallowed-types",
		Description: "Rejects target instance types and classes matched by the policy's disallowed patterns",
		Enabled:     true,
		Rego: `package spendoptimo.policies.types

import rego.v1

target_type := input.recommendation.target_config.instance_type if {
	input.recommendation.resource_kind == "compute"
}

target_type := input.recommendation.target_config.instance_class if {
	input.recommendation.resource_kind == "database"
}

deny contains violation if {
	some pattern in input.policy.disallowed_type_patterns
	glob.match(pattern, [], target_type)
	violation := {
		"message": sprintf("target type %s matches disallowed pattern %s", [target_type, pattern]),
		"resource": input.recommendation.resource_id,
	}
}`,
	}
}

func lifecycleRequiredRule() Rule {
	return Rule{
		Name:        "lifecycle-required",
		Description: "Requires object store targets to carry a lifecycle storage class when the policy demands one",
		Enabled:     true,
		Rego: `package spendoptimo.policies.lifecycle

import rego.v1

deny contains violation if {
	input.recommendation.resource_kind == "object_store"
	input.policy.lifecycle_required
	not input.recommendation.target_config.lifecycle_storage_class
	violation := {
		"message": "target configuration has no lifecycle storage class",
		"resource": input.recommendation.resource_id,
	}
}

deny contains violation if {
	input.recommendation.resource_kind == "object_store"
	class := input.recommendation.target_config.lifecycle_storage_class
	count(input.policy.allowed_storage_classes) > 0
	not class in input.policy.allowed_storage_classes
	violation := {
		"message": sprintf("lifecycle storage class %s is not allowed", [class]),
		"resource": input.recommendation.resource_id,
	}
}`,
	}
}

func functionCeilingsRule() Rule {
	return Rule{
		Name:        "function-ceilings",
		Description: "Enforces function timeout and reserved concurrency ceilings",
		Enabled:     true,
		Rego: `package spendoptimo.policies.functions

import rego.v1

deny contains violation if {
	input.recommendation.resource_kind == "function"
	timeout := to_number(input.recommendation.target_config.timeout_seconds)
	timeout > input.policy.max_timeout_seconds
	violation := {
		"message": sprintf("timeout %d exceeds policy maximum %d", [timeout, input.policy.max_timeout_seconds]),
		"resource": input.recommendation.resource_id,
	}
}

deny contains violation if {
	input.recommendation.resource_kind == "function"
	concurrency := to_number(input.recommendation.target_config.reserved_concurrency)
	concurrency > input.policy.max_reserved_concurrency
	violation := {
		"message": sprintf("reserved concurrency %d exceeds policy maximum %d", [concurrency, input.policy.max_reserved_concurrency]),
		"resource": input.recommendation.resource_id,
	}
}`,
	}
}

func storageTypeRule() Rule {
	return Rule{
		Name:        "disallowed-storage",
		Description: "Rejects disallowed database storage types and volume types",
		Enabled:     true,
		Rego: `package spendoptimo.policies.storage

import rego.v1

target_storage := input.recommendation.target_config.storage_type if {
	input.recommendation.resource_kind == "database"
}

target_storage := input.recommendation.target_config.volume_type if {
	input.recommendation.resource_kind == "volume"
}

deny contains violation if {
	target_storage in input.policy.disallowed_storage_types
	violation := {
		"message": sprintf("storage type %s is disallowed by policy", [target_storage]),
		"resource": input.recommendation.resource_id,
	}
}`,
	}
}

func savingsRule() Rule {
	return Rule{
		Name:        "non-negative-savings",
		Description: "Rejects recommendations whose estimated savings are negative",
		Enabled:     true,
		Rego: `package spendoptimo.policies.savings

import rego.v1

deny contains violation if {
	input.recommendation.estimated_monthly_savings < 0
	violation := {
		"message": "estimated monthly savings must be non-negative",
		"resource": input.recommendation.resource_id,
	}
}`,
	}
}
