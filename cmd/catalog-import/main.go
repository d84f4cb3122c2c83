package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/repository"
	"github.com/campusops/registrar-api/pkg/config"
	"github.com/campusops/registrar-api/pkg/database"
	"github.com/campusops/registrar-api/pkg/logger"
)

// catalog-import loads a published catalog bulletin (HTML) into the
// subjects, courses and course_prerequisites tables. Existing courses
// are updated in place; prerequisite edges are replaced wholesale per
// course. References to courses missing from both the bulletin and the
// database are reported and skipped.
//
// Expected markup, as produced by the bulletin export:
//
//	<div class="subject-area" data-code="CS">
//	  <h2>Computer Science</h2>
//	  <table class="course-list"><tbody>
//	    <tr>
//	      <td class="number">2500</td>
//	      <td class="title">Fundamentals of Computer Science 1</td>
//	      <td class="credits">4.0</td>
//	      <td class="prereqs">CS 1100, MATH 1200</td>
//	    </tr>
//	  </tbody></table>
//	</div>

var courseRefPattern = regexp.MustCompile(`([A-Z]{2,6})\s*(\d{3,4})`)

type parsedCourse struct {
	SubjectCode string
	Number      int
	Title       string
	CreditHours float64
	PrereqRefs  []string
}

type parsedSubject struct {
	Code string
	Name string
}

func main() {
	var (
		file   = flag.String("file", "", "path to a catalog bulletin HTML file")
		url    = flag.String("url", "", "URL of a catalog bulletin (used when -file is empty)")
		dryRun = flag.Bool("dry-run", false, "parse and report without writing")
	)
	flag.Parse()

	if *file == "" && *url == "" {
		log.Fatal("either -file or -url is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	doc, err := loadDocument(*file, *url)
	if err != nil {
		sugar.Fatalw("failed to load bulletin", "error", err)
	}

	subjects, courses, err := parseBulletin(doc)
	if err != nil {
		sugar.Fatalw("failed to parse bulletin", "error", err)
	}
	sugar.Infow("bulletin parsed", "subjects", len(subjects), "courses", len(courses))

	if *dryRun {
		for _, course := range courses {
			fmt.Printf("%s %d\t%.1f cr\t%s\tprereqs: %s\n",
				course.SubjectCode, course.Number, course.CreditHours, course.Title,
				strings.Join(course.PrereqRefs, ", "))
		}
		return
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	repo := repository.NewCourseRepository(db)
	imp := importer{repo: repo, sugar: sugar}
	if err := imp.run(ctx, subjects, courses); err != nil {
		sugar.Fatalw("import failed", "error", err)
	}
}

func loadDocument(file, url string) (*goquery.Document, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return goquery.NewDocumentFromReader(f)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bulletin: status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func parseBulletin(doc *goquery.Document) ([]parsedSubject, []parsedCourse, error) {
	var subjects []parsedSubject
	var courses []parsedCourse

	doc.Find("div.subject-area").Each(func(_ int, area *goquery.Selection) {
		code, ok := area.Attr("data-code")
		if !ok || code == "" {
			return
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		name := strings.TrimSpace(area.Find("h2").First().Text())
		subjects = append(subjects, parsedSubject{Code: code, Name: name})

		area.Find("table.course-list tbody tr").Each(func(_ int, row *goquery.Selection) {
			number, err := strconv.Atoi(strings.TrimSpace(row.Find("td.number").Text()))
			if err != nil {
				return
			}
			title := strings.TrimSpace(row.Find("td.title").Text())
			if title == "" {
				return
			}
			credits := parseCredits(row.Find("td.credits").Text())
			prereqs := parseCourseRefs(row.Find("td.prereqs").Text())

			courses = append(courses, parsedCourse{
				SubjectCode: code,
				Number:      number,
				Title:       title,
				CreditHours: credits,
				PrereqRefs:  prereqs,
			})
		})
	})

	if len(courses) == 0 {
		return nil, nil, fmt.Errorf("no courses found; is this a bulletin export?")
	}
	return subjects, courses, nil
}

func parseCredits(text string) float64 {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "credits")
	text = strings.TrimSuffix(text, "cr")
	credits, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0
	}
	return credits
}

// parseCourseRefs pulls "SUBJ 1234" style references out of free text.
// Narrative qualifiers ("or instructor consent") are ignored.
func parseCourseRefs(text string) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, match := range courseRefPattern.FindAllStringSubmatch(text, -1) {
		ref := match[1] + " " + match[2]
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

type importer struct {
	repo  *repository.CourseRepository
	sugar *zap.SugaredLogger
}

func (i importer) run(ctx context.Context, subjects []parsedSubject, courses []parsedCourse) error {
	existingSubjects, err := i.repo.ListSubjects(ctx)
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}
	knownSubjects := make(map[string]struct{}, len(existingSubjects))
	for _, s := range existingSubjects {
		knownSubjects[s.Code] = struct{}{}
	}

	var createdSubjects int
	for _, s := range subjects {
		if _, ok := knownSubjects[s.Code]; ok {
			continue
		}
		subject := models.Subject{Code: s.Code, Name: s.Name}
		if err := i.repo.CreateSubject(ctx, &subject); err != nil {
			return fmt.Errorf("create subject %s: %w", s.Code, err)
		}
		knownSubjects[s.Code] = struct{}{}
		createdSubjects++
	}

	existing, err := i.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	byRef := make(map[string]*models.Course, len(existing))
	for idx := range existing {
		course := &existing[idx]
		byRef[courseRef(course.SubjectCode, course.Number)] = course
	}

	var created, updated int
	for _, parsed := range courses {
		ref := courseRef(parsed.SubjectCode, parsed.Number)
		if current, ok := byRef[ref]; ok {
			if current.Title == parsed.Title && current.CreditHours == parsed.CreditHours && current.Active {
				continue
			}
			current.Title = parsed.Title
			current.CreditHours = parsed.CreditHours
			current.Active = true
			if err := i.repo.Update(ctx, current); err != nil {
				return fmt.Errorf("update course %s: %w", ref, err)
			}
			updated++
			continue
		}

		course := models.Course{
			SubjectCode: parsed.SubjectCode,
			Number:      parsed.Number,
			Title:       parsed.Title,
			CreditHours: parsed.CreditHours,
			Active:      true,
		}
		if err := i.repo.Create(ctx, &course); err != nil {
			return fmt.Errorf("create course %s: %w", ref, err)
		}
		byRef[ref] = &course
		created++
	}

	// Second pass so edges can point at courses created above.
	var edges, unresolved int
	for _, parsed := range courses {
		course := byRef[courseRef(parsed.SubjectCode, parsed.Number)]
		var prereqIDs []string
		for _, prereqRef := range parsed.PrereqRefs {
			prereq, ok := byRef[prereqRef]
			if !ok {
				i.sugar.Warnw("prerequisite not in catalog, skipped",
					"course", courseRef(parsed.SubjectCode, parsed.Number), "prerequisite", prereqRef)
				unresolved++
				continue
			}
			prereqIDs = append(prereqIDs, prereq.ID)
		}
		if len(prereqIDs) == 0 && len(parsed.PrereqRefs) == 0 {
			continue
		}
		if err := i.repo.ReplacePrerequisites(ctx, course.ID, prereqIDs); err != nil {
			return fmt.Errorf("set prerequisites for %s: %w", courseRef(parsed.SubjectCode, parsed.Number), err)
		}
		edges += len(prereqIDs)
	}

	i.sugar.Infow("import complete",
		"subjects_created", createdSubjects,
		"courses_created", created,
		"courses_updated", updated,
		"prerequisite_edges", edges,
		"unresolved_references", unresolved)
	return nil
}

func courseRef(subject string, number int) string {
	return fmt.Sprintf("%s %d", subject, number)
}
