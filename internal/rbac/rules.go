package rbac

// RolePermissions maps the user roles stored on accounts to what they may do.
// Role names match the values persisted in users.role.
var RolePermissions = map[string][]string{
	"Student": {
		"exam:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	"Teacher": {
		"exam:view",
		"exam:create",
		"exam:delete-own",
		"attempt:view-all",
	},
}
