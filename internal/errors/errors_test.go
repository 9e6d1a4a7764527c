package errors

import (
	"errors"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Error Taxonomy Suite")
}

var _ = Describe("AppError", func() {
	Context("basic construction", func() {
		It("creates an error with the right type and status", func() {
			err := New(TypeValidation, "bad input")

			Expect(err.Type).To(Equal(TypeValidation))
			Expect(err.Message).To(Equal("bad input"))
			Expect(err.StatusCode()).To(Equal(http.StatusBadRequest))
			Expect(err.Cause).To(BeNil())
		})

		It("formats the error string with details", func() {
			err := New(TypeValidation, "bad input").WithDetails("field: vehicle_id")
			Expect(err.Error()).To(Equal("validation: bad input (field: vehicle_id)"))
		})
	})

	Context("wrapping", func() {
		It("wraps an underlying error and unwraps back to it", func() {
			cause := errors.New("dial tcp: connection refused")
			wrapped := Wrap(cause, TypeBroker, "publish failed")

			Expect(wrapped.Cause).To(Equal(cause))
			Expect(errors.Unwrap(wrapped)).To(Equal(cause))
		})

		It("supports formatted wraps", func() {
			cause := errors.New("timeout")
			wrapped := Wrapf(cause, TypeUpstream, "call to %s failed", "security-service")
			Expect(wrapped.Message).To(Equal("call to security-service failed"))
		})
	})

	DescribeTable("status code mapping",
		func(t Type, status int) {
			Expect(New(t, "x").StatusCode()).To(Equal(status))
		},
		Entry("validation", TypeValidation, http.StatusBadRequest),
		Entry("authentication", TypeAuthentication, http.StatusUnauthorized),
		Entry("authorization", TypeAuthorization, http.StatusForbidden),
		Entry("not found", TypeNotFound, http.StatusNotFound),
		Entry("conflict", TypeConflict, http.StatusConflict),
		Entry("rate limit", TypeRateLimit, http.StatusTooManyRequests),
		Entry("business rule", TypeBusinessRule, http.StatusUnprocessableEntity),
		Entry("timeout", TypeTimeout, http.StatusGatewayTimeout),
		Entry("service unavailable", TypeServiceUnavailable, http.StatusServiceUnavailable),
		Entry("broker", TypeBroker, http.StatusInternalServerError),
		Entry("storage", TypeStorage, http.StatusInternalServerError),
		Entry("upstream", TypeUpstream, http.StatusBadGateway),
		Entry("internal", TypeInternal, http.StatusInternalServerError),
	)

	Context("As", func() {
		It("recovers the AppError through errors.As semantics", func() {
			original := New(TypeNotFound, "trip not found")
			wrapped := errors.New("context: " + original.Error())

			_, ok := As(wrapped)
			Expect(ok).To(BeFalse())

			recovered, ok := As(original)
			Expect(ok).To(BeTrue())
			Expect(recovered).To(Equal(original))
		})
	})

	Context("predefined constructors", func() {
		It("builds a not-found error from a resource name", func() {
			err := NewNotFoundError("trip")
			Expect(err.Message).To(Equal("trip not found"))
			Expect(err.Type).To(Equal(TypeNotFound))
		})

		It("hides the cause inside internal errors", func() {
			cause := errors.New("nil pointer at planner.go:42")
			err := NewInternalError(cause)
			Expect(err.Message).To(Equal("an internal error occurred"))
			Expect(err.Cause).To(Equal(cause))
		})
	})

	Context("ClassName", func() {
		It("returns the AppError's own type", func() {
			Expect(ClassName(New(TypeConflict, "x"))).To(Equal(TypeConflict))
		})

		It("falls back to Internal for foreign errors", func() {
			Expect(ClassName(errors.New("boom"))).To(Equal(TypeInternal))
		})
	})
})
