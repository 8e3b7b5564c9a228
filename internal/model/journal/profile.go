package journal

// Notifications toggles the reminder channels a user subscribed to.
type Notifications struct {
	Journal  bool `json:"journal" yaml:"journal"`
	Insights bool `json:"insights" yaml:"insights"`
}

// Preferences holds the per-user display settings.
type Preferences struct {
	DarkMode      bool          `json:"darkMode" yaml:"darkMode"`
	Notifications Notifications `json:"notifications" yaml:"notifications"`
}

// Profile describes the journal owner.
type Profile struct {
	ID           string      `json:"id" yaml:"id"`
	FirstName    string      `json:"firstName,omitempty" yaml:"firstName,omitempty"`
	LastName     string      `json:"lastName,omitempty" yaml:"lastName,omitempty"`
	AvatarURL    string      `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty"`
	IsSuperAdmin bool        `json:"isSuperAdmin" yaml:"isSuperAdmin"`
	Preferences  Preferences `json:"preferences" yaml:"preferences"`
}

// ProfileUpdate carries a partial profile change; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
}

// PreferencesUpdate carries a partial preferences change.
type PreferencesUpdate struct {
	DarkMode      *bool `json:"darkMode"`
	Notifications *struct {
		Journal  *bool `json:"journal"`
		Insights *bool `json:"insights"`
	} `json:"notifications"`
}

// Apply returns p with the non-nil fields of u applied.
func (u ProfileUpdate) Apply(p Profile) Profile {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	return p
}

// Apply returns p with the non-nil fields of u applied.
func (u PreferencesUpdate) Apply(p Preferences) Preferences {
	if u.DarkMode != nil {
		p.DarkMode = *u.DarkMode
	}
	if u.Notifications != nil {
		if u.Notifications.Journal != nil {
			p.Notifications.Journal = *u.Notifications.Journal
		}
		if u.Notifications.Insights != nil {
			p.Notifications.Insights = *u.Notifications.Insights
		}
	}
	return p
}
