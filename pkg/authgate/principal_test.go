package authgate

import "testing"

func TestAdminAlwaysSatisfiesPermission(t *testing.T) {
	admin := Principal{Role: RoleAdmin}
	if !admin.HasPermission("delete", "vehicle", ScopeSystem) {
		t.Error("admin should satisfy any permission")
	}
}

func TestPermissionSatisfiesExactMatch(t *testing.T) {
	p := Permission{Action: "read", Resource: "trip", Scope: ScopeFleet}
	if !p.Satisfies("read", "trip", ScopeFleet) {
		t.Error("exact action/resource/scope match should satisfy")
	}
}

func TestPermissionWildcardAction(t *testing.T) {
	p := Permission{Action: Wildcard, Resource: "trip", Scope: ScopeFleet}
	if !p.Satisfies("delete", "trip", ScopeFleet) {
		t.Error("wildcard action should match any action")
	}
}

func TestPermissionWildcardResource(t *testing.T) {
	p := Permission{Action: "read", Resource: Wildcard, Scope: ScopeFleet}
	if !p.Satisfies("read", "vehicle", ScopeFleet) {
		t.Error("wildcard resource should match any resource")
	}
}

func TestPermissionMonotonicityBroaderScopeSatisfiesNarrower(t *testing.T) {
	p := Permission{Action: "read", Resource: "trip", Scope: ScopeOrganization}
	if !p.Satisfies("read", "trip", ScopeFleet) {
		t.Error("a broader held scope should satisfy a narrower required scope")
	}
	if !p.Satisfies("read", "trip", ScopeUser) {
		t.Error("organization scope should satisfy the narrowest required scope")
	}
}

func TestPermissionNarrowerScopeDoesNotSatisfyBroaderRequirement(t *testing.T) {
	p := Permission{Action: "read", Resource: "trip", Scope: ScopeVehicle}
	if p.Satisfies("read", "trip", ScopeOrganization) {
		t.Error("vehicle scope must not satisfy an organization-scoped requirement")
	}
}

func TestPrincipalHasPermissionFalseWithNoMatch(t *testing.T) {
	p := Principal{Role: RoleDriver, Permissions: []Permission{
		{Action: "read", Resource: "trip", Scope: ScopeVehicle},
	}}
	if p.HasPermission("delete", "trip", ScopeVehicle) {
		t.Error("driver without a delete permission should not satisfy it")
	}
}

func TestParseScopeOrdering(t *testing.T) {
	user, _ := ParseScope("user")
	system, _ := ParseScope("system")
	if !(user < system) {
		t.Error("user scope should order below system scope")
	}
}

func TestParseScopeUnknownReturnsError(t *testing.T) {
	if _, err := ParseScope("galaxy"); err == nil {
		t.Error("expected an error for an unknown scope name")
	}
}
