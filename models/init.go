package models

import "gorm.io/gorm"

// SeedDefaultWords inserts the default sensitive words if they are missing.
func SeedDefaultWords(db *gorm.DB) error {
	for _, word := range DefaultSensitiveWords {
		entry := WordEntry{
			List:      SensitiveList,
			Word:      word,
			Normal:    FoldWord(word),
			IsDefault: true,
		}
		if err := db.Where(WordEntry{List: SensitiveList, Normal: entry.Normal}).
			FirstOrCreate(&entry).Error; err != nil {
			return err
		}
	}
	return nil
}

// AutoMigrate creates or updates the tables backing the store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EmailRecord{},
		&WordEntry{},
	)
}
