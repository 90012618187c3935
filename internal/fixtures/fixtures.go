// Package fixtures loads per-environment reference data (accounts and
// the bookable catalogue) from a YAML file into the database.
//
// A fixture file maps environment names to sections:
//
//	dev:
//	  users:
//	    - {email: officer@uni.edu, full_name: Lab Officer, password: secret, role: OFFICER}
//	  categories:
//	    - {name: Cameras, icon: camera}
//	  equipment:
//	    - {name: DSLR, category: Cameras, quantity: 3, requires_approval: true}
//	  labs:
//	    - name: Robotics
//	      capacity: 20
//	      slots:
//	        - {day: MONDAY, start: "09:00", end: "11:00"}
//
// Loading is idempotent: rows are matched by their natural key (email or
// name) and existing rows are left untouched.
package fixtures

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/department-admin/internal/database"
	"github.com/iliyamo/department-admin/internal/model"
)

// Set is one environment's section.
type Set struct {
	Users      []User      `yaml:"users"`
	Categories []Category  `yaml:"categories"`
	Equipment  []Equipment `yaml:"equipment"`
	Labs       []Lab       `yaml:"labs"`
}

type User struct {
	Email    string `yaml:"email"`
	FullName string `yaml:"full_name"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type Category struct {
	Name        string `yaml:"name"`
	Icon        string `yaml:"icon"`
	Description string `yaml:"description"`
}

type Equipment struct {
	Name             string `yaml:"name"`
	Category         string `yaml:"category"`
	Quantity         int    `yaml:"quantity"`
	RequiresApproval bool   `yaml:"requires_approval"`
	Location         string `yaml:"location"`
}

type Lab struct {
	Name       string `yaml:"name"`
	Capacity   int    `yaml:"capacity"`
	Location   string `yaml:"location"`
	Facilities string `yaml:"facilities"`
	Slots      []Slot `yaml:"slots"`
}

type Slot struct {
	Day   string `yaml:"day"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// ErrNoSection is returned when the file has no section for the environment.
var ErrNoSection = errors.New("fixtures: no section for environment")

// Load reads path and returns the validated section for env.
func Load(path, env string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Set{}, err
	}
	defer f.Close()
	return Parse(f, env)
}

// Parse decodes a fixture document and returns the validated section for
// env.  Unknown keys are rejected so that typos do not silently drop rows.
func Parse(r io.Reader, env string) (Set, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc map[string]Set
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Set{}, fmt.Errorf("fixtures: decode: %w", err)
	}
	set, ok := doc[env]
	if !ok {
		return Set{}, fmt.Errorf("%w %q", ErrNoSection, env)
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Validate checks every row before anything is written.
func (s Set) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("fixtures: "+format, args...))
	}

	for i, u := range s.Users {
		if strings.TrimSpace(u.Email) == "" || u.Password == "" {
			bad("users[%d]: email and password are required", i)
		}
		if _, ok := model.ParseRole(u.Role); !ok {
			bad("users[%d]: unknown role %q", i, u.Role)
		}
	}
	for i, c := range s.Categories {
		if strings.TrimSpace(c.Name) == "" {
			bad("categories[%d]: name is required", i)
		}
	}
	for i, e := range s.Equipment {
		if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Category) == "" {
			bad("equipment[%d]: name and category are required", i)
		}
		if e.Quantity < 1 {
			bad("equipment[%d]: quantity must be at least 1", i)
		}
	}
	for i, l := range s.Labs {
		if strings.TrimSpace(l.Name) == "" {
			bad("labs[%d]: name is required", i)
		}
		if l.Capacity < 1 {
			bad("labs[%d]: capacity must be at least 1", i)
		}
		for j, sl := range l.Slots {
			if _, _, err := sl.parse(); err != nil {
				bad("labs[%d].slots[%d]: %v", i, j, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (sl Slot) parse() (model.DayOfWeek, model.TimeRange, error) {
	day, ok := model.ParseDayOfWeek(sl.Day)
	if !ok {
		return "", model.TimeRange{}, fmt.Errorf("unknown day %q", sl.Day)
	}
	start, err := model.ParseTimeOfDay(sl.Start)
	if err != nil {
		return "", model.TimeRange{}, fmt.Errorf("start: %w", err)
	}
	end, err := model.ParseTimeOfDay(sl.End)
	if err != nil {
		return "", model.TimeRange{}, fmt.Errorf("end: %w", err)
	}
	r := model.TimeRange{Start: start, End: end}
	if !r.Valid() {
		return "", model.TimeRange{}, errors.New("start must be before end")
	}
	return day, r, nil
}

// UserEnsurer creates an account unless the email already exists.
type UserEnsurer interface {
	Ensure(ctx context.Context, email, fullName, password string, role model.RoleID, cost int) (uint64, error)
}

// Summary counts the rows a load inserted.
type Summary struct {
	Users      int
	Categories int
	Equipment  int
	Labs       int
	Slots      int
}

// Loader writes a Set.  Cost is the bcrypt cost for new accounts.
type Loader struct {
	DB    *sql.DB
	Users UserEnsurer
	Cost  int
	Log   *slog.Logger
}

// Apply writes s.  Accounts are ensured one by one; the catalogue is
// written in a single transaction.
func (l *Loader) Apply(ctx context.Context, s Set) (Summary, error) {
	var sum Summary
	for _, u := range s.Users {
		role, ok := model.ParseRole(u.Role)
		if !ok {
			return sum, fmt.Errorf("fixtures: user %s: unknown role %q", u.Email, u.Role)
		}
		if _, err := l.Users.Ensure(ctx, u.Email, u.FullName, u.Password, role, l.Cost); err != nil {
			return sum, fmt.Errorf("fixtures: user %s: %w", u.Email, err)
		}
		sum.Users++
	}

	if len(s.Categories)+len(s.Equipment)+len(s.Labs) == 0 {
		l.logSummary(ctx, sum)
		return sum, nil
	}
	err := database.InTx(ctx, l.DB, func(tx *sql.Tx) error {
		for _, c := range s.Categories {
			n, err := exec(ctx, tx,
				"INSERT IGNORE INTO equipment_categories (name, icon, description) VALUES (?,?,?)",
				c.Name, c.Icon, nullable(c.Description))
			if err != nil {
				return fmt.Errorf("fixtures: category %s: %w", c.Name, err)
			}
			sum.Categories += int(n)
		}
		for _, e := range s.Equipment {
			added, err := ensureEquipment(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("fixtures: equipment %s: %w", e.Name, err)
			}
			if added {
				sum.Equipment++
			}
		}
		for _, lab := range s.Labs {
			slots, added, err := ensureLab(ctx, tx, lab)
			if err != nil {
				return fmt.Errorf("fixtures: lab %s: %w", lab.Name, err)
			}
			if added {
				sum.Labs++
				sum.Slots += slots
			}
		}
		return nil
	})
	if err != nil {
		return sum, err
	}
	l.logSummary(ctx, sum)
	return sum, nil
}

func (l *Loader) logSummary(ctx context.Context, sum Summary) {
	if l.Log == nil {
		return
	}
	l.Log.InfoContext(ctx, "fixtures applied",
		"users", sum.Users, "categories", sum.Categories,
		"equipment", sum.Equipment, "labs", sum.Labs, "slots", sum.Slots)
}

func ensureEquipment(ctx context.Context, tx *sql.Tx, e Equipment) (bool, error) {
	var id uint64
	err := tx.QueryRowContext(ctx, "SELECT id FROM equipment WHERE name=? LIMIT 1", e.Name).Scan(&id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	var categoryID uint64
	err = tx.QueryRowContext(ctx, "SELECT id FROM equipment_categories WHERE name=? LIMIT 1", e.Category).Scan(&categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("unknown category %q", e.Category)
	}
	if err != nil {
		return false, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO equipment (name, category_id, quantity, available, requires_approval, location)
		 VALUES (?,?,?,?,?,?)`,
		e.Name, categoryID, e.Quantity, e.Quantity, e.RequiresApproval, e.Location)
	return err == nil, err
}

// ensureLab inserts the lab and its slots.  Slots of an existing lab are
// not touched.
func ensureLab(ctx context.Context, tx *sql.Tx, l Lab) (int, bool, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO labs (name, capacity, location, facilities) VALUES (?,?,?,?)",
		l.Name, l.Capacity, l.Location, nullable(l.Facilities))
	if err != nil {
		return 0, false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, false, err
	}
	labID, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	for _, sl := range l.Slots {
		day, r, err := sl.parse()
		if err != nil {
			return 0, false, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO lab_time_slots (lab_id, day_of_week, start_time, end_time) VALUES (?,?,?,?)",
			labID, string(day), r.Start, r.End); err != nil {
			return 0, false, err
		}
	}
	return len(l.Slots), true, nil
}

func exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
