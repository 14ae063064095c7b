package extract

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseAmount", func() {
	DescribeTable("valid monetary tokens",
		func(input, expected string) {
			amount, err := ParseAmount(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(amount).To(equalDecimal(expected))
		},
		Entry("plain decimal", "45.67", "45.67"),
		Entry("dollar sign", "$20.00", "20.00"),
		Entry("rupee sign", "₹1,500.50", "1500.50"),
		Entry("thousands separators", "1,234,567.89", "1234567.89"),
		Entry("negative value", "-45.67", "45.67"),
		Entry("explicit plus", "+$1,200.00", "1200.00"),
		Entry("sign after symbol", "$-12.30", "12.30"),
		Entry("integer", "300", "300"),
		Entry("trailing dot", "12.", "12"),
		Entry("leading dot", ".75", "0.75"),
		Entry("surrounding spaces", "  9.99 ", "9.99"),
		Entry("trailing currency code", "-45.67 USD", "45.67"),
		Entry("trailing garbage", "12.50abc", "12.50"),
		Entry("second dot", "1.2.3", "1.2"),
	)

	DescribeTable("malformed tokens",
		func(input string) {
			_, err := ParseAmount(input)
			Expect(errors.Is(err, ErrInvalidAmount)).To(BeTrue())
		},
		Entry("empty", ""),
		Entry("symbols only", "$,"),
		Entry("letters", "abc"),
		Entry("lone dot", "."),
		Entry("leading currency code", "USD 45.67"),
		Entry("NaN spelled out", "NaN"),
	)
})

var _ = Describe("ParseSigned", func() {
	It("keeps the sign of negative amounts", func() {
		amount, err := ParseSigned("-$45.67")
		Expect(err).NotTo(HaveOccurred())
		Expect(amount.IsNegative()).To(BeTrue())
		Expect(amount.Abs()).To(equalDecimal("45.67"))
	})

	It("keeps the sign when a currency code follows", func() {
		amount, err := ParseSigned("-45.67 USD")
		Expect(err).NotTo(HaveOccurred())
		Expect(amount.IsNegative()).To(BeTrue())
		Expect(amount.Abs()).To(equalDecimal("45.67"))
	})

	It("treats unsigned amounts as positive", func() {
		amount, err := ParseSigned("45.67")
		Expect(err).NotTo(HaveOccurred())
		Expect(amount.IsPositive()).To(BeTrue())
	})
})
