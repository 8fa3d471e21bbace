//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of linkauth.AccountStore.
// It supports any database that GORM supports and relies on the database's
// unique indexes for the email and provider id constraints.
//
// # Database Schema
//
// AutoMigrate creates a single accounts table with one nullable unique
// column per credential key (local_email, facebook_id, twitter_id,
// google_id) plus the profile columns for each provider.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	accountStore := gormstore.NewAccountStore(db)
package gorm
