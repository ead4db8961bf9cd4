package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanWithdrawalTransitionTo(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{WithdrawalStatusPending, WithdrawalStatusApproved, true},
		{WithdrawalStatusPending, WithdrawalStatusPaid, true},
		{WithdrawalStatusPending, WithdrawalStatusRejected, true},
		{WithdrawalStatusApproved, WithdrawalStatusPaid, true},
		{WithdrawalStatusApproved, WithdrawalStatusRejected, false},
		{WithdrawalStatusApproved, WithdrawalStatusPending, false},
		{WithdrawalStatusPaid, WithdrawalStatusRejected, false},
		{WithdrawalStatusPaid, WithdrawalStatusPaid, false},
		{WithdrawalStatusRejected, WithdrawalStatusApproved, false},
		{"unknown", WithdrawalStatusPaid, false},
	}
	for _, tc := range cases {
		t.Run(tc.from+"->"+tc.to, func(t *testing.T) {
			assert.Equal(t, tc.want, CanWithdrawalTransitionTo(tc.from, tc.to))
		})
	}
}

func TestIsWithdrawalTerminal(t *testing.T) {
	assert.True(t, IsWithdrawalTerminal(WithdrawalStatusPaid))
	assert.True(t, IsWithdrawalTerminal(WithdrawalStatusRejected))
	assert.False(t, IsWithdrawalTerminal(WithdrawalStatusPending))
	assert.False(t, IsWithdrawalTerminal(WithdrawalStatusApproved))
}

func TestBankSnapshotValid(t *testing.T) {
	assert.True(t, BankSnapshot{BankName: "ICBC", AccountName: "Li", AccountNumber: "6222"}.Valid())
	assert.False(t, BankSnapshot{BankName: "ICBC", AccountName: "Li"}.Valid())
	assert.False(t, BankSnapshot{}.Valid())
}
