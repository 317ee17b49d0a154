package table

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("tables", func() {
		When("nothing has been saved", func() {
			It("returns ErrNoTable", func() {
				_, err := db.GetTable()
				Expect(err).To(MatchError(ErrNoTable))
			})
		})

		When("a table is saved", func() {
			var table *Table

			BeforeEach(func() {
				created := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
				table = &Table{
					ID:        "t1",
					Column:    "quantity",
					Model:     "gemini-3-flash",
					Rows:      []Row{{Code: "A", Description: "first", Value: 1.25}},
					Pages:     []string{"t1_page1.png"},
					CreatedAt: created,
					UpdatedAt: created,
				}
				Expect(db.SaveTable(table)).To(Succeed())
			})

			It("round-trips it", func() {
				saved, err := db.GetTable()
				Expect(err).NotTo(HaveOccurred())
				Expect(saved).To(Equal(table))
			})

			It("replaces it on the next save", func() {
				Expect(db.SaveTable(&Table{ID: "t2"})).To(Succeed())
				saved, err := db.GetTable()
				Expect(err).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("t2"))
			})

			It("persists across reopen", func() {
				Expect(db.Close()).To(Succeed())
				var err error
				db, err = NewBoltDB(dbPath)
				Expect(err).NotTo(HaveOccurred())

				saved, err := db.GetTable()
				Expect(err).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("t1"))
			})
		})
	})

	Describe("settings", func() {
		It("returns an empty string for an unset key", func() {
			Expect(db.GetSetting(apiKeySetting)).To(BeEmpty())
		})

		It("stores and deletes a value", func() {
			Expect(db.SaveSetting(apiKeySetting, "secret")).To(Succeed())
			Expect(db.GetSetting(apiKeySetting)).To(Equal("secret"))

			Expect(db.DeleteSetting(apiKeySetting)).To(Succeed())
			Expect(db.GetSetting(apiKeySetting)).To(BeEmpty())
		})
	})
})
