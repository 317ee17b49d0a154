package table

import (
	"encoding/json"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/tablescan/internal/scanning"
)

var _ = Describe("Aggregate", func() {
	DescribeTable("AggregationKey",
		func(code, expected string) {
			Expect(AggregationKey(code)).To(Equal(expected))
		},
		Entry("trims a single-line code", "  ABC-1 ", "ABC-1"),
		Entry("keeps inner spaces on one line", "AB 12", "AB 12"),
		Entry("takes the first line of a multi-line code", "ABC\n123", "ABC"),
		Entry("strips whitespace from the first line", " A B\t1\n2", "AB1"),
		Entry("empty code", "   ", ""),
	)

	It("sums duplicate codes in first-seen order", func() {
		out := Aggregate([]scanning.Row{
			{Code: "B", Description: "bee", Value: 1},
			{Code: "A", Description: "ay", Value: 2},
			{Code: " B ", Description: "bee again", Value: 3},
			{Code: "A\nxyz", Description: "ay again", Value: 0.5},
		})

		Expect(out).To(Equal([]scanning.Row{
			{Code: "B", Description: "bee", Value: 4},
			{Code: "A", Description: "ay", Value: 2.5},
		}))
	})

	It("sums decimals without float drift", func() {
		out := Aggregate([]scanning.Row{
			{Code: "X", Value: 0.1},
			{Code: "X", Value: 0.2},
		})
		Expect(out).To(HaveLen(1))
		Expect(out[0].Value).To(Equal(0.3))
	})

	It("clamps sums that overflow float64", func() {
		out := Aggregate([]scanning.Row{
			{Code: "BIG", Value: 1.7e308},
			{Code: "BIG", Value: 1.7e308},
			{Code: "NEG", Value: -1.7e308},
			{Code: "NEG", Value: -1.7e308},
		})
		Expect(out).To(Equal([]scanning.Row{
			{Code: "BIG", Value: math.MaxFloat64},
			{Code: "NEG", Value: -math.MaxFloat64},
		}))

		_, err := json.Marshal(Table{Rows: []Row{{Code: "BIG", Value: out[0].Value}}})
		Expect(err).NotTo(HaveOccurred())
	})

	It("drops rows whose code normalizes to empty", func() {
		out := Aggregate([]scanning.Row{
			{Code: " ", Value: 5},
			{Code: "\nABC", Value: 1},
			{Code: "K", Value: 1},
		})
		Expect(out).To(Equal([]scanning.Row{{Code: "K", Value: 1}}))
	})

	It("is idempotent", func() {
		once := Aggregate([]scanning.Row{
			{Code: "A", Value: 1},
			{Code: "A", Value: 1},
			{Code: "B", Value: 2},
		})
		Expect(Aggregate(once)).To(Equal(once))
	})

	It("returns an empty slice for no input", func() {
		Expect(Aggregate(nil)).To(BeEmpty())
	})
})
