package commands

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/term"

	simpledao "github.com/kaifufi/simpledao-client-go"
)

// promptPassphrase reads the keystore passphrase without echo. An empty
// answer declines the connection.
func promptPassphrase(account accounts.Account) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("stdin is not a terminal: run interactively to enter the passphrase")
	}
	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", account.Address.Hex())
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	passphrase := string(raw)
	clear(raw)
	return passphrase, nil
}

// confirmTransaction shows the transaction and asks before it is signed
func confirmTransaction(tx *types.Transaction) (bool, error) {
	if assumeYes {
		return true, nil
	}

	fee := new(big.Int).Mul(tx.GasPrice(), new(big.Int).SetUint64(tx.Gas()))
	fmt.Fprintf(os.Stderr, "Send transaction to %s (gas %d, max fee %s ETH)? [y/N] ",
		tx.To().Hex(), tx.Gas(), simpledao.FormatUnits(fee, 18))

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
