package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginPolicy() Policy {
	return Policy{Category: CategoryAuthLogin, Window: time.Minute, MaxRequests: 5}
}

func TestNewRegistry_DefaultsFailureModeToClosed(t *testing.T) {
	reg, err := NewRegistry(loginPolicy())
	require.NoError(t, err)

	p, err := reg.Resolve(CategoryAuthLogin)
	require.NoError(t, err)
	assert.Equal(t, FailClosed, p.FailureMode)
	assert.Equal(t, int64(5), p.Ceiling())
}

func TestNewRegistry_RejectsInvalidPolicies(t *testing.T) {
	cases := map[string]Policy{
		"zero window":    {Category: CategoryAuthLogin, MaxRequests: 1},
		"zero max":       {Category: CategoryAuthLogin, Window: time.Second},
		"negative burst": {Category: CategoryAuthLogin, Window: time.Second, MaxRequests: 1, Burst: -1},
		"bad mode":       {Category: CategoryAuthLogin, Window: time.Second, MaxRequests: 1, FailureMode: "sideways"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(p)
			require.ErrorIs(t, err, ErrInvalidPolicy)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestNewRegistry_RejectsUnknownCategory(t *testing.T) {
	_, err := NewRegistry(Policy{Category: "billing", Window: time.Second, MaxRequests: 1})
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(loginPolicy(), loginPolicy())
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestRegistry_ResolveUnknownCategory(t *testing.T) {
	reg, err := NewRegistry(loginPolicy())
	require.NoError(t, err)

	_, err = reg.Resolve(CategoryMessagingSend)
	require.ErrorIs(t, err, ErrUnknownCategory)

	_, err = reg.Resolve("nonexistent-category")
	require.ErrorIs(t, err, ErrUnknownCategory)

	var nilReg *Registry
	_, err = nilReg.Resolve(CategoryAuthLogin)
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRegistry_PoliciesSortedCopy(t *testing.T) {
	reg, err := NewRegistry(
		Policy{Category: CategoryPublicContent, Window: time.Second, MaxRequests: 100, FailureMode: FailOpen},
		loginPolicy(),
	)
	require.NoError(t, err)

	ps := reg.Policies()
	require.Len(t, ps, 2)
	assert.Equal(t, CategoryAuthLogin, ps[0].Category)
	assert.Equal(t, CategoryPublicContent, ps[1].Category)

	ps[0].MaxRequests = 999
	p, _ := reg.Resolve(CategoryAuthLogin)
	assert.Equal(t, int64(5), p.MaxRequests)
}

func TestParseCategoryAndFailureMode(t *testing.T) {
	c, err := ParseCategory("  AUTH-LOGIN ")
	require.NoError(t, err)
	assert.Equal(t, CategoryAuthLogin, c)

	_, err = ParseCategory("auth:login")
	require.ErrorIs(t, err, ErrUnknownCategory)

	m, err := ParseFailureMode("")
	require.NoError(t, err)
	assert.Equal(t, FailClosed, m)

	m, err = ParseFailureMode("Open")
	require.NoError(t, err)
	assert.Equal(t, FailOpen, m)

	_, err = ParseFailureMode("maybe")
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestCategoriesNeverContainSeparator(t *testing.T) {
	for _, c := range Categories() {
		assert.NotContains(t, string(c), ":")
		assert.True(t, c.Valid())
	}
}
