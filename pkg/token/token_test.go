package token_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/custodex/pkg/token"
)

var (
	deployer = common.HexToAddress("0xDD00000000000000000000000000000000000001")
	alice    = common.HexToAddress("0xAA00000000000000000000000000000000000001")
	bob      = common.HexToAddress("0xBB00000000000000000000000000000000000001")
	spender  = common.HexToAddress("0xCC00000000000000000000000000000000000001")
)

func newTestToken(t *testing.T, supply int64) (*token.Registry, common.Address) {
	t.Helper()
	reg := token.NewRegistry(nil)
	addr, err := reg.Deploy(deployer, "Test Token", "TST", supply)
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	return reg, addr
}

func TestDeployMintsSupplyToDeployer(t *testing.T) {
	reg, addr := newTestToken(t, 1000)

	tok, err := reg.Get(addr)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if tok.Name != "Test Token" || tok.Symbol != "TST" {
		t.Errorf("descriptor = %s/%s, want Test Token/TST", tok.Name, tok.Symbol)
	}
	if tok.TotalSupply != 1000 {
		t.Errorf("total supply = %d, want 1000", tok.TotalSupply)
	}
	if got := reg.BalanceOf(addr, deployer); got != 1000 {
		t.Errorf("deployer balance = %d, want 1000", got)
	}
}

func TestDeployDuplicateRejected(t *testing.T) {
	reg, _ := newTestToken(t, 1000)

	if _, err := reg.Deploy(deployer, "Test Token", "TST", 500); !errors.Is(err, token.ErrTokenExists) {
		t.Errorf("redeploy error = %v, want ErrTokenExists", err)
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	a := token.DeriveAddress(deployer, "Test Token", "TST")
	b := token.DeriveAddress(deployer, "Test Token", "TST")
	if a != b {
		t.Errorf("same inputs derived %s and %s", a.Hex(), b.Hex())
	}
	if c := token.DeriveAddress(deployer, "Other", "OTH"); c == a {
		t.Error("different inputs derived the same address")
	}
}

func TestTransfer(t *testing.T) {
	reg, addr := newTestToken(t, 1000)

	if err := reg.Transfer(addr, deployer, alice, 400); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := reg.BalanceOf(addr, deployer); got != 600 {
		t.Errorf("deployer balance = %d, want 600", got)
	}
	if got := reg.BalanceOf(addr, alice); got != 400 {
		t.Errorf("alice balance = %d, want 400", got)
	}
}

func TestTransferRejectsZeroAddress(t *testing.T) {
	reg, addr := newTestToken(t, 1000)

	err := reg.Transfer(addr, deployer, common.Address{}, 10)
	if !errors.Is(err, token.ErrZeroAddress) {
		t.Errorf("error = %v, want ErrZeroAddress", err)
	}
	if got := reg.BalanceOf(addr, deployer); got != 1000 {
		t.Errorf("failed transfer moved value: deployer balance = %d", got)
	}
}

func TestTransferExceedingBalance(t *testing.T) {
	reg, addr := newTestToken(t, 1000)

	err := reg.Transfer(addr, alice, bob, 1)
	if !errors.Is(err, token.ErrInsufficientFunds) {
		t.Errorf("error = %v, want ErrInsufficientFunds", err)
	}
	if got := reg.BalanceOf(addr, bob); got != 0 {
		t.Errorf("failed transfer credited bob = %d", got)
	}
}

func TestTransferUnknownToken(t *testing.T) {
	reg := token.NewRegistry(nil)
	err := reg.Transfer(common.HexToAddress("0x01"), deployer, alice, 1)
	if !errors.Is(err, token.ErrUnknownToken) {
		t.Errorf("error = %v, want ErrUnknownToken", err)
	}
}

func TestApproveAndTransferFrom(t *testing.T) {
	reg, addr := newTestToken(t, 1000)

	if err := reg.Approve(addr, deployer, spender, 300); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if got := reg.Allowance(addr, deployer, spender); got != 300 {
		t.Errorf("allowance = %d, want 300", got)
	}

	if err := reg.TransferFrom(addr, spender, deployer, bob, 200); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
	if got := reg.BalanceOf(addr, bob); got != 200 {
		t.Errorf("bob balance = %d, want 200", got)
	}
	// Allowance is consumed by the delegated transfer.
	if got := reg.Allowance(addr, deployer, spender); got != 100 {
		t.Errorf("remaining allowance = %d, want 100", got)
	}
}

func TestTransferFromExceedingAllowance(t *testing.T) {
	reg, addr := newTestToken(t, 1000)
	reg.Approve(addr, deployer, spender, 50)

	err := reg.TransferFrom(addr, spender, deployer, bob, 100)
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Errorf("error = %v, want ErrInsufficientAllowance", err)
	}
	if got := reg.BalanceOf(addr, deployer); got != 1000 {
		t.Errorf("failed transferFrom moved value: deployer = %d", got)
	}
	if got := reg.Allowance(addr, deployer, spender); got != 50 {
		t.Errorf("failed transferFrom burned allowance: %d", got)
	}
}

func TestTransferFromExceedingBalance(t *testing.T) {
	reg, addr := newTestToken(t, 100)
	reg.Approve(addr, deployer, spender, 500)

	err := reg.TransferFrom(addr, spender, deployer, bob, 200)
	if !errors.Is(err, token.ErrInsufficientFunds) {
		t.Errorf("error = %v, want ErrInsufficientFunds", err)
	}
	if got := reg.Allowance(addr, deployer, spender); got != 500 {
		t.Errorf("failed transferFrom burned allowance: %d", got)
	}
}

func TestBalanceOfUnknownAccountIsZero(t *testing.T) {
	reg, addr := newTestToken(t, 1000)
	if got := reg.BalanceOf(addr, bob); got != 0 {
		t.Errorf("unknown account balance = %d, want 0", got)
	}
	if got := reg.Allowance(addr, bob, spender); got != 0 {
		t.Errorf("unknown allowance = %d, want 0", got)
	}
}
