package handler

import "github.com/gofiber/fiber/v2"

// Dashboard handles GET / and serves the monitoring UI. The page is
// self-contained and polls the JSON API.
func Dashboard(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(dashboardHTML)
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Review Pilot</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 0; background: #0f172a; color: #e2e8f0; }
  .wrap { max-width: 960px; margin: 0 auto; padding: 2rem 1rem; }
  h1 { margin: 0 0 .25rem; }
  .muted { color: #94a3b8; }
  .card { background: #1e293b; border: 1px solid #334155; border-radius: 8px; padding: 1.25rem; margin-top: 1.5rem; }
  label { display: block; font-size: .875rem; margin: .75rem 0 .25rem; }
  input { width: 100%; box-sizing: border-box; padding: .5rem; background: #0f172a; color: #e2e8f0; border: 1px solid #334155; border-radius: 4px; }
  button { margin-top: 1rem; padding: .5rem 1.25rem; background: #2563eb; color: white; border: 0; border-radius: 4px; cursor: pointer; }
  button:hover { background: #1d4ed8; }
  .job { display: flex; justify-content: space-between; align-items: center; padding: .6rem 0; border-bottom: 1px solid #334155; }
  .badge { padding: .15rem .6rem; border-radius: 9999px; font-size: .75rem; font-weight: 600; }
  .pending { background: #fef3c7; color: #92400e; }
  .processing { background: #dbeafe; color: #1e40af; }
  .completed { background: #dcfce7; color: #166534; }
  .failed { background: #fee2e2; color: #991b1b; }
  pre { white-space: pre-wrap; font-size: .8rem; }
</style>
</head>
<body>
<div class="wrap">
  <h1>Review Pilot</h1>
  <p class="muted">Automated analysis for GitHub pull requests</p>

  <div class="card">
    <h2>Submit Pull Request</h2>
    <form id="submitForm">
      <label>Repository URL</label>
      <input type="text" id="repoUrl" placeholder="https://github.com/owner/repo" required>
      <label>PR Number</label>
      <input type="number" id="prNumber" placeholder="123" required>
      <label>GitHub Token (optional)</label>
      <input type="password" id="githubToken" placeholder="ghp_...">
      <button type="submit">Submit Review</button>
    </form>
  </div>

  <div class="card">
    <h2>Recent Jobs</h2>
    <div id="jobs"><p class="muted">No jobs yet</p></div>
  </div>

  <div class="card" id="resultCard" style="display:none">
    <h2>Result</h2>
    <pre id="resultBody"></pre>
  </div>
</div>

<script>
const api = window.location.origin;

document.getElementById('submitForm').addEventListener('submit', async (e) => {
  e.preventDefault();
  const body = {
    repoUrl: document.getElementById('repoUrl').value,
    prNumber: parseInt(document.getElementById('prNumber').value),
    githubToken: document.getElementById('githubToken').value || undefined
  };
  const resp = await fetch(api + '/api/review/submit', {
    method: 'POST',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify(body)
  });
  if (!resp.ok) {
    const err = await resp.json();
    alert('Error: ' + (err.error ? err.error.message : resp.status));
    return;
  }
  document.getElementById('submitForm').reset();
  loadJobs();
});

async function loadJobs() {
  const resp = await fetch(api + '/api/review/jobs?limit=20');
  if (!resp.ok) return;
  const jobs = await resp.json();
  const el = document.getElementById('jobs');
  if (!jobs.length) { el.innerHTML = '<p class="muted">No jobs yet</p>'; return; }
  el.innerHTML = jobs.map(j =>
    '<div class="job"><div>' + j.repoUrl.split('/').slice(-2).join('/') +
    ' <span class="muted">#' + j.prNumber + '</span></div>' +
    '<div><span class="badge ' + j.status + '">' + j.status + '</span> ' +
    (j.status === 'completed' || j.status === 'failed'
      ? '<a href="#" onclick="viewResult(\'' + j.jobId + '\');return false">view</a>' : '') +
    '</div></div>').join('');
}

async function viewResult(jobId) {
  const resp = await fetch(api + '/api/review/result/' + jobId);
  const data = await resp.json();
  document.getElementById('resultCard').style.display = 'block';
  document.getElementById('resultBody').textContent = JSON.stringify(data, null, 2);
}

loadJobs();
setInterval(loadJobs, 5000);
</script>
</body>
</html>
`
