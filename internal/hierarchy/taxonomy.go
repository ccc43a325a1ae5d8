// Package hierarchy derives parent→child skill relationships from a
// static taxonomy table plus LLM inference over the skill universe.
package hierarchy

// taxonomy is the hand-maintained table of known parent→child skill
// relationships. Matching is case-insensitive and goes through both
// canonical names and aliases, so entries use common surface forms.
var taxonomy = [][2]string{
	{"Python", "Django"},
	{"Python", "Flask"},
	{"Python", "FastAPI"},
	{"Python", "Pandas"},
	{"Python", "NumPy"},
	{"Python", "PyTorch"},
	{"Python", "TensorFlow"},
	{"JavaScript", "React"},
	{"JavaScript", "Vue"},
	{"JavaScript", "Angular"},
	{"JavaScript", "Node.js"},
	{"JavaScript", "TypeScript"},
	{"TypeScript", "Angular"},
	{"Node.js", "Express"},
	{"React", "Next.js"},
	{"Vue", "Nuxt"},
	{"Java", "Spring"},
	{"Java", "Spring Boot"},
	{"Java", "Hibernate"},
	{"Spring", "Spring Boot"},
	{"Go", "Gin"},
	{"Go", "gRPC"},
	{"Ruby", "Ruby on Rails"},
	{"PHP", "Laravel"},
	{"PHP", "Symfony"},
	{"C#", ".NET"},
	{".NET", "ASP.NET"},
	{"AWS", "Lambda"},
	{"AWS", "S3"},
	{"AWS", "EC2"},
	{"AWS", "DynamoDB"},
	{"AWS", "CloudFormation"},
	{"GCP", "BigQuery"},
	{"GCP", "Cloud Run"},
	{"Azure", "Azure Functions"},
	{"Kubernetes", "Helm"},
	{"Docker", "Docker Compose"},
	{"SQL", "PostgreSQL"},
	{"SQL", "MySQL"},
	{"PostgreSQL", "pgvector"},
	{"Machine Learning", "Deep Learning"},
	{"Deep Learning", "PyTorch"},
	{"Deep Learning", "TensorFlow"},
	{"DevOps", "CI/CD"},
	{"CI/CD", "GitHub Actions"},
	{"CI/CD", "Jenkins"},
	{"Linux", "Bash"},
}
