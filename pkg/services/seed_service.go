package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
	"github.com/TFMV/nlq/pkg/repositories"
)

// Fixture collection names, in the order they are written.
const (
	DepartmentsCollection = "departments"
	EmployeesCollection   = "employees"
	ProjectsCollection    = "projects"
)

// Fixture sizes.
const (
	seedEmployees   = 50
	seedRecentHires = 5
	seedProjects    = 10
)

type department struct {
	code     string
	name     string
	budget   float64
	location string
}

var seedDepartments = []department{
	{code: "ENG", name: "Engineering", budget: 5000000, location: "San Francisco"},
	{code: "MKT", name: "Marketing", budget: 2000000, location: "New York"},
	{code: "FIN", name: "Finance", budget: 3000000, location: "Chicago"},
	{code: "HR", name: "Human Resources", budget: 1000000, location: "Austin"},
	{code: "SALES", name: "Sales", budget: 4000000, location: "Dallas"},
}

var (
	firstNames         = []string{"John", "Jane", "Michael", "Emily", "David", "Sarah", "Robert", "Lisa", "James", "Jennifer"}
	lastNames          = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
	emailDomains       = []string{"engineering.com", "techcorp.com", "devops.io", "cloudnine.tech"}
	educationLevels    = []string{"High School", "Associate's", "Bachelor's", "Master's", "PhD", "MBA"}
	performanceRatings = []string{"Exceeds Expectations", "Meets Expectations", "Needs Improvement"}
	contactNames       = []string{"Alex Johnson", "Taylor Smith", "Jordan Williams", "Casey Brown", "Riley Garcia"}
	relationships      = []string{"Spouse", "Parent", "Sibling", "Friend", "Relative"}
	extraLanguages     = []string{"Spanish", "French", "German", "Mandarin"}
	projectTypes       = []string{"Web Application", "Mobile App", "API Development", "Data Migration", "Cloud Migration"}
	projectStatuses    = []string{"Planning", "In Progress", "On Hold", "Completed", "Cancelled"}

	allSkills = []string{
		"Java", "Python", "JavaScript", "SQL", "MongoDB", "Spring Boot", "React", "Node.js",
		"Project Management", "Agile", "Scrum", "Data Analysis", "Market Research", "SEO",
		"Financial Modeling", "Accounting", "Taxation", "Recruitment", "Employee Relations",
	}
	allCertifications = []string{
		"AWS Certified Solutions Architect", "Google Cloud Professional", "Certified Scrum Master",
		"PMP", "CISSP", "CISCO CCNA", "Microsoft Certified: Azure Administrator",
		"Oracle Certified Professional", "Certified Data Professional", "ITIL Foundation",
	}
	positionsByDepartment = map[string][]string{
		"ENG":   {"Software Engineer", "Senior Developer", "Tech Lead", "Architect", "QA Engineer"},
		"MKT":   {"Marketing Manager", "Content Writer", "SEO Specialist", "Social Media Manager"},
		"FIN":   {"Accountant", "Financial Analyst", "CFO", "Controller"},
		"HR":    {"HR Manager", "Recruiter", "HR Business Partner", "Training Specialist"},
		"SALES": {"Sales Executive", "Account Manager", "Sales Director", "Business Development"},
	}
	stateByCity = map[string]string{
		"San Francisco": "CA",
		"New York":      "NY",
		"Chicago":       "IL",
		"Austin":        "TX",
		"Dallas":        "TX",
	}
)

// seedService implements SeedService. All randomness comes from rng so a
// fixed seed reproduces the same fixtures.
type seedService struct {
	writer  repositories.SeedWriter
	logger  Logger
	metrics MetricsCollector

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSeedService creates a new seed service. A nil now selects time.Now.
func NewSeedService(
	writer repositories.SeedWriter,
	rng *rand.Rand,
	now func() time.Time,
	logger Logger,
	metrics MetricsCollector,
) SeedService {
	if now == nil {
		now = time.Now
	}
	return &seedService{
		writer:  writer,
		logger:  logger,
		metrics: metrics,
		rng:     rng,
		now:     now,
	}
}

// Seed writes the fixture collections. A collection that already holds
// documents is skipped unless force is set.
func (s *seedService) Seed(ctx context.Context, force bool) (*models.SeedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := s.metrics.StartTimer("seed")
	defer timer.Stop()

	report := &models.SeedReport{Inserted: make(map[string]int)}
	now := s.now().UTC()

	fixtures := []struct {
		collection string
		build      func(now time.Time) []interface{}
	}{
		{DepartmentsCollection, s.departments},
		{EmployeesCollection, s.employees},
		{ProjectsCollection, s.projects},
	}

	for _, f := range fixtures {
		if !force {
			count, err := s.writer.Count(ctx, f.collection)
			if err != nil {
				return nil, errors.Wrapf(err, errors.CodeExecutionError, "failed to count %s", f.collection)
			}
			if count > 0 {
				s.logger.Info("Collection already seeded, skipping", "collection", f.collection, "documents", count)
				report.Skipped = append(report.Skipped, f.collection)
				continue
			}
		}

		docs := f.build(now)
		n, err := s.writer.Replace(ctx, f.collection, docs)
		if err != nil {
			s.logger.Error("Failed to seed collection", "error", err, "collection", f.collection)
			return nil, errors.Wrapf(err, errors.CodeExecutionError, "failed to seed %s", f.collection)
		}
		report.Inserted[f.collection] = n
		s.metrics.RecordGauge("seeded_documents", float64(n), "collection", f.collection)
		s.logger.Info("Collection seeded", "collection", f.collection, "documents", n)
	}

	return report, nil
}

func (s *seedService) departments(now time.Time) []interface{} {
	docs := make([]interface{}, 0, len(seedDepartments))
	for _, d := range seedDepartments {
		docs = append(docs, bson.D{
			{Key: "code", Value: d.code},
			{Key: "name", Value: d.name},
			{Key: "budget", Value: d.budget},
			{Key: "location", Value: d.location},
			{Key: "active", Value: true},
			{Key: "createdAt", Value: now},
		})
	}
	return docs
}

func (s *seedService) employees(now time.Time) []interface{} {
	docs := make([]interface{}, 0, seedEmployees)
	for id := 1; id <= seedEmployees; id++ {
		dept := seedDepartments[s.rng.Intn(len(seedDepartments))]
		joinDate := now.AddDate(-s.rng.Intn(5), -s.rng.Intn(12), -s.rng.Intn(30))
		if id <= seedRecentHires {
			joinDate = now.AddDate(0, 0, -s.rng.Intn(30))
		}
		docs = append(docs, s.employee(id, dept, joinDate, now))
	}
	return docs
}

func (s *seedService) employee(id int, dept department, joinDate, now time.Time) bson.D {
	first := s.pick(firstNames)
	last := s.pick(lastNames)
	years := 1 + s.rng.Intn(10)
	position := s.pick(positionsByDepartment[dept.code])
	salary := baseSalary(s.rng, position) * (1 + float64(years)*0.05) * (0.9 + s.rng.Float64()*0.2)

	var managerID interface{}
	if id > 10 && s.rng.Float64() > 0.3 {
		managerID = fmt.Sprintf("EMP%04d", 1+s.rng.Intn(10))
	}
	var lastPromotion interface{}
	if s.rng.Float64() > 0.7 {
		lastPromotion = joinDate.AddDate(0, s.rng.Intn(24), 0)
	}
	gender := "Female"
	if s.rng.Intn(2) == 0 {
		gender = "Male"
	}

	return bson.D{
		{Key: "employeeId", Value: fmt.Sprintf("EMP%04d", id)},
		{Key: "firstName", Value: first},
		{Key: "lastName", Value: last},
		{Key: "email", Value: strings.ToLower(first + "." + last + "@" + s.pick(emailDomains))},
		{Key: "phone", Value: s.phone()},
		{Key: "age", Value: int32(22 + s.rng.Intn(30))},
		{Key: "gender", Value: gender},
		{Key: "education", Value: s.pick(educationLevels)},
		{Key: "department", Value: dept.code},
		{Key: "position", Value: position},
		{Key: "salary", Value: math.Round(salary*100) / 100},
		{Key: "joinDate", Value: joinDate},
		{Key: "yearsOfExperience", Value: int32(years)},
		{Key: "isActive", Value: s.rng.Float64() > 0.1},
		{Key: "isFullTime", Value: s.rng.Float64() > 0.2},
		{Key: "skills", Value: s.sample(allSkills, 3+s.rng.Intn(3))},
		{Key: "languages", Value: s.languages()},
		{Key: "certifications", Value: s.sample(allCertifications, s.rng.Intn(4))},
		{Key: "performanceRating", Value: s.pick(performanceRatings)},
		{Key: "managerId", Value: managerID},
		{Key: "emergencyContact", Value: bson.D{
			{Key: "name", Value: s.pick(contactNames)},
			{Key: "relationship", Value: s.pick(relationships)},
			{Key: "phone", Value: s.phone()},
		}},
		{Key: "address", Value: bson.D{
			{Key: "street", Value: fmt.Sprintf("%d Main St", 100+s.rng.Intn(9000))},
			{Key: "city", Value: dept.location},
			{Key: "state", Value: stateByCity[dept.location]},
			{Key: "zipCode", Value: fmt.Sprintf("%05d", 10000+s.rng.Intn(90000))},
			{Key: "country", Value: "USA"},
		}},
		{Key: "lastPromotionDate", Value: lastPromotion},
		{Key: "createdAt", Value: now},
		{Key: "updatedAt", Value: now},
	}
}

func (s *seedService) projects(now time.Time) []interface{} {
	docs := make([]interface{}, 0, seedProjects)
	for id := 1; id <= seedProjects; id++ {
		dept := seedDepartments[s.rng.Intn(len(seedDepartments))]
		docs = append(docs, bson.D{
			{Key: "projectId", Value: fmt.Sprintf("PRJ%03d", id)},
			{Key: "name", Value: fmt.Sprintf("%s %s %d", dept.name, s.pick(projectTypes), id)},
			{Key: "department", Value: dept.code},
			{Key: "description", Value: "Project for " + dept.name + " department"},
			{Key: "budget", Value: math.Round((10000+s.rng.Float64()*90000)*100) / 100},
			{Key: "startDate", Value: now},
			{Key: "endDate", Value: now.AddDate(0, 0, 30+s.rng.Intn(330))},
			{Key: "status", Value: s.pick(projectStatuses)},
			{Key: "createdAt", Value: now},
		})
	}
	return docs
}

func baseSalary(rng *rand.Rand, position string) float64 {
	switch {
	case strings.Contains(position, "Manager"), strings.Contains(position, "Director"), position == "CFO":
		return float64(80000 + rng.Intn(120000))
	case strings.Contains(position, "Senior"), strings.Contains(position, "Lead"):
		return float64(70000 + rng.Intn(80000))
	case strings.Contains(position, "Junior"), strings.Contains(position, "Associate"):
		return float64(45000 + rng.Intn(30000))
	}
	return float64(50000 + rng.Intn(50000))
}

func (s *seedService) pick(values []string) string {
	return values[s.rng.Intn(len(values))]
}

// sample returns n distinct values in random order.
func (s *seedService) sample(values []string, n int) []string {
	if n > len(values) {
		n = len(values)
	}
	out := make([]string, len(values))
	copy(out, values)
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:n]
}

func (s *seedService) languages() []string {
	out := []string{"English (Native)"}
	for _, lang := range s.sample(extraLanguages, 1+s.rng.Intn(3)) {
		level := "Basic"
		if s.rng.Intn(2) == 0 {
			level = "Fluent"
		}
		out = append(out, lang+" ("+level+")")
	}
	return out
}

func (s *seedService) phone() string {
	return fmt.Sprintf("(%03d) %03d-%04d", 200+s.rng.Intn(800), 100+s.rng.Intn(900), 1000+s.rng.Intn(9000))
}
