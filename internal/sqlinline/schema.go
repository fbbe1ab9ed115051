package sqlinline

const QSchema = `--sql 5271dddf-2594-4189-8fce-304cf7bf3ce7
create table if not exists jobs (
  id               text primary key,
  project_name     text not null,
  input_filename   text not null,
  source_path      text not null,
  asr_clip_seconds integer not null,
  hook_clip_seconds integer not null,
  status           text not null,
  error_message    text not null default '',
  cancel_requested integer not null default 0,
  artifacts        text not null default '{}',
  meta             text not null default '{}',
  created_at       integer not null,
  updated_at       integer not null
);
create index if not exists idx_jobs_created_at on jobs (created_at desc);
create table if not exists job_events (
  id         integer primary key autoincrement,
  job_id     text not null references jobs (id) on delete cascade,
  status     text not null,
  message    text not null default '',
  created_at integer not null
);
create index if not exists idx_job_events_job on job_events (job_id, id);
`
