package custodian

// PolicySet is the configuration the engine's registries are seeded from.
type PolicySet struct {
	// Permissions maps a permission name to the roles directly granted it.
	Permissions map[string][]string `json:"permissions"`

	// Hierarchy maps a role to the roles it inherits from.
	Hierarchy map[string][]string `json:"hierarchy"`

	// Ownership holds the ownership rules, applied in order.
	Ownership []OwnershipRule `json:"-"`
}

// Built-in roles.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// BuiltinPolicy returns the default HR policy: employees manage their own
// leave requests and uploads, managers review their team, and admins
// administer users and the policy itself.
func BuiltinPolicy() PolicySet {
	return PolicySet{
		Permissions: map[string][]string{
			"users.view":   {RoleAdmin},
			"users.create": {RoleAdmin},
			"users.update": {RoleAdmin},
			"users.delete": {RoleAdmin},

			"employees.view":     {RoleManager},
			"employees.view_own": {RoleEmployee},
			"employees.update":   {RoleAdmin},

			"leaves.view":     {RoleManager},
			"leaves.view_own": {RoleEmployee},
			"leaves.create":   {RoleEmployee},
			"leaves.approve":  {RoleManager},

			"uploads.view":     {RoleManager},
			"uploads.view_own": {RoleEmployee},
			"uploads.create":   {RoleEmployee},
			"uploads.delete":   {RoleAdmin},

			"audit.view":         {RoleAdmin},
			"permissions.manage": {RoleAdmin},
		},
		Hierarchy: map[string][]string{
			RoleAdmin:   {RoleManager, RoleEmployee},
			RoleManager: {RoleEmployee},
		},
		Ownership: []OwnershipRule{
			FieldOwnership{ResourceType: "users", ResourceField: "id"},
			FieldOwnership{ResourceType: "employees", ResourceField: "userId"},
			FieldOwnership{ResourceType: "leaves", ResourceField: "employeeId"},
			FieldOwnership{ResourceType: "uploads", ResourceField: "uploadedBy"},
		},
	}
}
