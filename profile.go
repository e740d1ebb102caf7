package spiboot

// Profile describes the flash layout of a device family.
type Profile struct {
	Name      string `yaml:"name" toml:"name"`
	FlashBase uint32 `yaml:"flash_base" toml:"flash_base"`
	PageSize  uint32 `yaml:"page_size" toml:"page_size"`
	// PagesPer4K is the number of pages erased by Erase4K.
	PagesPer4K uint32 `yaml:"pages_per_4k" toml:"pages_per_4k"`
	// MassEraseCode is the special erase code used by MassErase.
	MassEraseCode uint16 `yaml:"mass_erase_code" toml:"mass_erase_code"`
}

// DefaultProfile returns the layout of the STM32L4 family: 2 KiB pages
// starting at 0x08000000.
func DefaultProfile() Profile {
	return Profile{
		Name:          "stm32l4",
		FlashBase:     0x08000000,
		PageSize:      2048,
		PagesPer4K:    2,
		MassEraseCode: EraseGlobal,
	}
}

// withDefaults fills in zero fields from DefaultProfile.
func (p Profile) withDefaults() Profile {
	d := DefaultProfile()
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.PageSize == 0 {
		p.PageSize = d.PageSize
	}
	if p.PagesPer4K == 0 {
		p.PagesPer4K = 4096 / p.PageSize
		if p.PagesPer4K == 0 {
			p.PagesPer4K = 1
		}
	}
	if p.MassEraseCode == 0 {
		p.MassEraseCode = d.MassEraseCode
	}
	return p
}
