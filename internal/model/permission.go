package model

// Permission names.  These identifiers are stored verbatim in the
// `permissions` table and referenced by route guards, so they are part
// of the public contract.
const (
	PermBookLab                 = "BOOK_LAB"
	PermCreateLab               = "CREATE_LAB"
	PermBookEquipment           = "BOOK_EQUIPMENT"
	PermApproveEquipmentBooking = "APPROVE_EQUIPMENT_BOOKING"
	PermManageEquipment         = "MANAGE_EQUIPMENT"
	PermViewEquipmentBookings   = "VIEW_EQUIPMENT_BOOKINGS"
	PermManageProjects          = "MANAGE_PROJECTS"
	PermManageNotices           = "MANAGE_NOTICES"
	PermManageEvents            = "MANAGE_EVENTS"
	PermRegisterEvent           = "REGISTER_EVENT"
	PermSubmitAssignment        = "SUBMIT_ASSIGNMENT"
	PermManageRoles             = "MANAGE_ROLES"
)

// Permission categories group related permissions for UI listings.
const (
	CategoryLabs           = "LABS"
	CategoryEquipment      = "EQUIPMENT"
	CategoryContent        = "CONTENT"
	CategoryEvents         = "EVENTS"
	CategoryProjects       = "PROJECTS"
	CategoryAcademic       = "ACADEMIC"
	CategoryAdministration = "ADMINISTRATION"
)

// Permission represents a row in the `permissions` table.
//
// Fields:
//
//	ID       - primary key identifier.
//	Name     - stable uppercase identifier (e.g. BOOK_LAB).
//	Category - UI grouping of the permission.
type Permission struct {
	ID       uint64 `json:"id"`       // permissions.id
	Name     string `json:"name"`     // permissions.name
	Category string `json:"category"` // permissions.category
}

// PermissionCatalogue is the full set of permissions known to the
// application.  The seed inserts these rows; ids are assigned by the
// database.
var PermissionCatalogue = []Permission{
	{Name: PermBookLab, Category: CategoryLabs},
	{Name: PermCreateLab, Category: CategoryLabs},
	{Name: PermBookEquipment, Category: CategoryEquipment},
	{Name: PermApproveEquipmentBooking, Category: CategoryEquipment},
	{Name: PermManageEquipment, Category: CategoryEquipment},
	{Name: PermViewEquipmentBookings, Category: CategoryEquipment},
	{Name: PermManageProjects, Category: CategoryProjects},
	{Name: PermManageNotices, Category: CategoryContent},
	{Name: PermManageEvents, Category: CategoryEvents},
	{Name: PermRegisterEvent, Category: CategoryEvents},
	{Name: PermSubmitAssignment, Category: CategoryAcademic},
	{Name: PermManageRoles, Category: CategoryAdministration},
}

// DefaultGrants is the normalised grant matrix applied by the seed.
// Grants are additive; a permission with no entry is granted to nobody.
var DefaultGrants = map[string][]RoleID{
	PermCreateLab:               {RoleOfficer},
	PermBookLab:                 {RoleChairman, RoleStudent, RoleFaculty},
	PermBookEquipment:           {RoleTeacher, RoleStudent, RoleFaculty},
	PermApproveEquipmentBooking: {RoleOfficer},
	PermManageEquipment:         {RoleOfficer},
	PermManageNotices:           {RoleOfficer},
	PermManageEvents:            {RoleOfficer},
	PermManageProjects:          {RoleOfficer},
	PermViewEquipmentBookings:   {RoleStudent, RoleTeacher, RoleFaculty, RoleOfficer},
	PermRegisterEvent:           {RoleStudent},
	PermManageRoles:             {RoleAdmin},
}

// KnownPermission reports whether name is in the catalogue.
func KnownPermission(name string) bool {
	for _, p := range PermissionCatalogue {
		if p.Name == name {
			return true
		}
	}
	return false
}
