// Package models contains shared data models used across the podcastgate codebase.
package models
