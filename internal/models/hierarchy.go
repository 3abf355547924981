package models

// ReferrerProfile links a referrer to the people above and beside them.
// Manager is either a REFERRER_MANAGER or an OFFICE user.
type ReferrerProfile struct {
	ID                  uint   `gorm:"primaryKey"`
	UserID              uint   `gorm:"uniqueIndex;not null"`
	User                User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ManagerID           *uint  `gorm:"index"`
	Manager             *User  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Advisors            []User `gorm:"many2many:referrer_profile_advisors;"`
	LastChosenAdvisorID *uint
}

type ManagerProfile struct {
	ID       uint    `gorm:"primaryKey"`
	UserID   uint    `gorm:"uniqueIndex;not null"`
	User     User    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	OfficeID *uint   `gorm:"index"`
	Office   *Office `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
}

type Office struct {
	ID      uint   `gorm:"primaryKey"`
	Name    string `gorm:"size:255;uniqueIndex;not null"`
	OwnerID *uint  `gorm:"index"`
	Owner   *User  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
}

// Hierarchy is the resolved commission chain above one referrer.
type Hierarchy struct {
	ReferrerID    uint
	ManagerID     *uint
	OfficeOwnerID *uint
}

func (h Hierarchy) HasManager() bool {
	return h.ManagerID != nil
}

func (h Hierarchy) HasOffice() bool {
	return h.OfficeOwnerID != nil
}
