package enum

// ── Group A: State machine (CHECK constrained in DB) ──

const (
	OrderStatusPending            = "Pending"
	OrderStatusPlaced             = "Placed"
	OrderStatusRSMSubmitted       = "BM/RSM Submitted"
	OrderStatusLogisticReviewed   = "Logistic Reviewed"
	OrderStatusApproved           = "Approved"
	OrderStatusRejected           = "Rejected"
	OrderStatusRejectedByRSM      = "Rejected By BM/RSM"
	OrderStatusRejectedByLogistic = "Rejected By Logistic"
)

// OrderStatuses is the closed set of order statuses.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusPlaced,
	OrderStatusRSMSubmitted,
	OrderStatusLogisticReviewed,
	OrderStatusApproved,
	OrderStatusRejected,
	OrderStatusRejectedByRSM,
	OrderStatusRejectedByLogistic,
}

// RejectedStatuses groups the three rejection states for the
// dashboard-style "Rejected" bucket filter.
var RejectedStatuses = []string{
	OrderStatusRejected,
	OrderStatusRejectedByRSM,
	OrderStatusRejectedByLogistic,
}

// TerminalStatuses are the states with no outgoing workflow edge.
var TerminalStatuses = []string{
	OrderStatusApproved,
	OrderStatusRejected,
	OrderStatusRejectedByRSM,
	OrderStatusRejectedByLogistic,
}

// ── Group C: Roles (CHECK constrained in DB) ──

const (
	RoleSalesOfficer = "so"
	RoleRSM          = "rsm"
	RoleDealer       = "dealer"
	RoleLogistic     = "logistic"
	RoleOwner        = "owner"
	RoleAdmin        = "admin"
	RoleFactoryProc  = "factoryprocgm"
	RoleDirectSales  = "directsales"
	RoleKhanpurSale  = "khanpursale"
)

// Roles is the closed set of role strings.
var Roles = []string{
	RoleSalesOfficer,
	RoleRSM,
	RoleDealer,
	RoleLogistic,
	RoleOwner,
	RoleAdmin,
	RoleFactoryProc,
	RoleDirectSales,
	RoleKhanpurSale,
}

// SubmitterRoles are the roles allowed to create orders. Sales officers
// route through the regional-manager tier; the rest go straight to logistics.
var SubmitterRoles = []string{
	RoleSalesOfficer,
	RoleDealer,
	RoleFactoryProc,
	RoleDirectSales,
	RoleKhanpurSale,
}

// ── Group B: Configurable labels (no DB constraint) ──

// LineAddedByLogistics tags ledger-adjustment lines added during logistics
// review. Submitter-facing views filter these out.
const LineAddedByLogistics = "LM"

// RestrictedCategories may not be mixed with any other category in a single
// order. Matched case-insensitively against line category or product name.
var RestrictedCategories = []string{
	"vegetables",
	"pearl millet",
	"mustard",
	"hybrid mustard",
}

// IsValidOrderStatus reports whether s is in the closed status set.
func IsValidOrderStatus(s string) bool {
	for _, v := range OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsValidRole reports whether s is in the closed role set.
func IsValidRole(s string) bool {
	for _, v := range Roles {
		if v == s {
			return true
		}
	}
	return false
}

// IsSubmitterRole reports whether the role belongs to the submitter tier.
func IsSubmitterRole(s string) bool {
	for _, v := range SubmitterRoles {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether s has no outgoing workflow edge.
func IsTerminalStatus(s string) bool {
	for _, v := range TerminalStatuses {
		if v == s {
			return true
		}
	}
	return false
}
