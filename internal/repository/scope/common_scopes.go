package scope

import "gorm.io/gorm"

func OrderByCreatedDesc(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC")
}

func OrderByCreatedAsc(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}

// OrderByVectorID is chunk insertion order, the tie-break for equal similarity scores.
func OrderByVectorID(db *gorm.DB) *gorm.DB {
	return db.Order("vector_id ASC")
}
