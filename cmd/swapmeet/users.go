package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/model"
	"github.com/swapmeet/swapmeet/internal/store"
)

func initCmd(c *cli) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the schema and an admin account with a generated password",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			password, err := generatePassword(16)
			if err != nil {
				return fmt.Errorf("generating password: %w", err)
			}
			if _, err := createUser(cmd.Context(), database, username, password, model.RoleAdmin); err != nil {
				return err
			}

			printInitResult(cmd, username, password)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "admin", "admin username")
	return cmd
}

func userCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var role, password string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.ValidRole(role) {
				return fmt.Errorf("invalid role %q", role)
			}
			database, err := c.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			generated := password == ""
			if generated {
				if password, err = generatePassword(16); err != nil {
					return fmt.Errorf("generating password: %w", err)
				}
			}
			user, err := createUser(cmd.Context(), database, args[0], password, role)
			if err != nil {
				return err
			}

			cmd.Printf("Created %s %s (%s)\n", user.Role, user.Username, user.ID)
			if generated {
				cmd.Printf("Password: %s\n", password)
			}
			return nil
		},
	}
	add.Flags().StringVarP(&role, "role", "r", model.RoleUser, "role (admin or user)")
	add.Flags().StringVarP(&password, "password", "p", "", "password (generated if empty)")

	remove := &cobra.Command{
		Use:   "remove <username>",
		Short: "Soft-delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			user, err := store.GetUserByUsername(cmd.Context(), database, args[0])
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("user %q not found", args[0])
			}
			if err := store.DeleteUser(cmd.Context(), database, user.ID); err != nil {
				return err
			}
			slog.Info("user deleted", "deleted_user", user.Username)
			return nil
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func createUser(ctx context.Context, database *db.DB, username, password, role string) (*model.User, error) {
	if username == "" {
		return nil, errors.New("username required")
	}
	if err := model.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user, err := store.CreateUser(ctx, database, username, string(hash), role)
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", username, err)
	}
	slog.Info("user created", "new_user", username, "role", role)
	return user, nil
}

// printInitResult prints the generated admin credentials.
func printInitResult(cmd *cobra.Command, username, password string) {
	cmd.Println("Schema initialized.")
	cmd.Println()
	cmd.Println("Admin account created:")
	cmd.Printf("  Username: %s\n", username)
	cmd.Printf("  Password: %s\n", password)
	cmd.Println()
	cmd.Println("Save this password, it cannot be recovered.")
	cmd.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
